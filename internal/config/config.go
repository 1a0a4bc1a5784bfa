// Package config は環境変数からプロセス設定を構築します。
// 設定はmainで一度だけ読み込み、明示的に各コンポーネントへ渡します。
// グローバルな参照は行いません。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all process configuration, resolved once at startup.
type Config struct {
	Port string

	// Clients maps registered client ids to secrets (plaintext or bcrypt hash).
	Clients   map[string]string
	JWTSecret string
	TokenTTL  time.Duration

	// Detector selects the detection backend: "yolo" or "vision".
	Detector      string
	InferenceURL  string
	MinConfidence float64
	MaxImageSize  int

	// MongoURI selects the primary store; when empty the gorm fallback is used.
	MongoURI string
	MongoDB  string
	DBDriver string
	DBDSN    string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	CacheTTL      time.Duration

	RequestTimeout time.Duration
	ListLimit      int
}

// Load reads configuration from the environment with defaults.
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		Clients:   parseClients(getEnv("CLIENT_CREDENTIALS", "")),
		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvAsDuration("TOKEN_TTL", 15*time.Minute),

		Detector:      getEnv("DETECTOR", "yolo"),
		InferenceURL:  getEnv("INFERENCE_URL", "http://localhost:5000/predict"),
		MinConfidence: getEnvAsFloat("MIN_CONFIDENCE", 0.5),
		MaxImageSize:  getEnvAsInt("MAX_IMAGE_SIZE", 16*1024*1024),

		MongoURI: getEnv("MONGO_URI", ""),
		MongoDB:  getEnv("MONGO_DB", "computer-vision"),
		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "annotations.db"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CacheTTL:      getEnvAsDuration("CACHE_TTL", 5*time.Minute),

		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		ListLimit:      getEnvAsInt("LIST_LIMIT", 100),
	}
}

// RedisAddr returns host:port, or empty when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

// parseClients parses "id1:secret1,id2:secret2" into a credential map.
// Entries without a secret are skipped.
func parseClients(raw string) map[string]string {
	clients := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, secret, ok := strings.Cut(pair, ":")
		if !ok || id == "" || secret == "" {
			continue
		}
		clients[id] = secret
	}
	return clients
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

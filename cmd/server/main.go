package main

import (
	"context"
	"log"
	"log/slog"

	redisv9 "github.com/redis/go-redis/v9"

	"vision_backend/internal/app/di"
	"vision_backend/internal/app/router"
	"vision_backend/internal/config"
	"vision_backend/internal/feature/annotation/adapters/gemini"
	annotationhandler "vision_backend/internal/feature/annotation/transport/handler"
	"vision_backend/internal/feature/annotation/usecase"
	"vision_backend/internal/platform/clientauth"
	jwtauth "vision_backend/internal/platform/jwt"
	infraredis "vision_backend/internal/platform/redis"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	// 登録クライアントチェック（開発中の注意喚起）
	if len(cfg.Clients) == 0 {
		log.Println("[WARN] CLIENT_CREDENTIALS is not set. All annotation requests will be rejected.")
	}
	if cfg.JWTSecret == "" {
		log.Println("[WARN] JWT_SECRET is not set. The token endpoint is disabled.")
	}

	// Redis（任意）
	var rdb *redisv9.Client
	if cfg.RedisAddr() != "" {
		if tmp, err := infraredis.NewRedisClient(cfg.RedisAddr(), cfg.RedisPassword); err != nil {
			log.Println("[WARN] Redis unavailable. Running without cache.")
		} else {
			rdb = tmp
			defer func() {
				if err := rdb.Close(); err != nil {
					log.Println("[ERROR] Failed to close Redis client:", err)
				}
			}()
		}
	}

	// Annotation Store（Mongo、なければGORMフォールバック）+ キャッシュ
	store, storeCleanup, err := di.NewAnnotationRepository(ctx, cfg, rdb)
	if err != nil {
		log.Fatal(err)
	}
	defer storeCleanup()

	// 検出バックエンド
	detector, detectorCleanup, err := di.NewObjectDetector(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer detectorCleanup()

	// シーン説明（任意。クレデンシャルがない環境では無効化して続行する）
	var describer usecase.SceneDescriber
	if d, err := gemini.NewGeminiDescriber(ctx); err != nil {
		slog.Warn("scene description disabled", "error", err)
	} else {
		describer = d
	}

	// 認証ゲートとトークン発行
	var verifier clientauth.TokenVerifier
	var generator jwtauth.Generator
	if cfg.JWTSecret != "" {
		verifier = jwtauth.NewVerifier(cfg.JWTSecret)
		generator = jwtauth.NewGenerator(cfg.JWTSecret, cfg.TokenTTL)
	}
	gate := clientauth.NewGate(cfg.Clients, verifier)

	// Usecase
	annotationUC := usecase.NewAnnotationUsecase(gate, detector, store, describer, usecase.RetryConfig{
		MaxImageSize: cfg.MaxImageSize,
		ListLimit:    cfg.ListLimit,
	})

	// Handler
	annotationH := annotationhandler.NewAnnotationHandler(annotationUC)
	tokenH := annotationhandler.NewTokenHandler(gate, generator)

	// ルータ生成
	router := router.NewRouter(annotationH, tokenH, cfg.RequestTimeout)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"vision_backend/internal/api"
	"vision_backend/internal/feature/annotation/domain/entity"
	"vision_backend/internal/feature/annotation/usecase"
	jwtauth "vision_backend/internal/platform/jwt"
)

// TokenHandler はクライアントクレデンシャルグラントのトークン発行を処理します。
type TokenHandler struct {
	gate      usecase.CredentialGate
	generator jwtauth.Generator
}

// NewTokenHandler はTokenHandlerの新しいインスタンスを生成します。
func NewTokenHandler(gate usecase.CredentialGate, generator jwtauth.Generator) *TokenHandler {
	return &TokenHandler{gate: gate, generator: generator}
}

// Issue はクライアントID/シークレットを検証し、短命のアクセストークンを発行します。
//
// エンドポイント: POST /v1/token
// Content-Type: application/json
func (h *TokenHandler) Issue(c *gin.Context) {
	if h.generator == nil {
		// JWT_SECRET未設定（サーバー設定不備）
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "token endpoint is not configured"})
		return
	}

	var req api.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("トークンリクエストのバリデーションに失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "client_id and client_secret are required"})
		return
	}

	cred := entity.Credential{ClientID: req.ClientID, ClientSecret: req.ClientSecret}
	if err := h.gate.Authenticate(cred); err != nil {
		// クライアント列挙攻撃を防止するため、実際のエラーを公開しない
		slog.Warn("トークン発行の認証に失敗", "client_id", req.ClientID, "remote_addr", c.ClientIP())
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid client credentials"})
		return
	}

	token, ttl, err := h.generator.GenerateToken(req.ClientID)
	if err != nil {
		slog.Error("トークンの生成に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to issue token"})
		return
	}

	slog.Info("access token issued", "client_id", req.ClientID)
	c.JSON(http.StatusOK, api.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	})
}

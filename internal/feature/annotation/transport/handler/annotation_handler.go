// Package handler はannotationフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vision_backend/internal/api"
	"vision_backend/internal/feature/annotation/domain"
	"vision_backend/internal/feature/annotation/domain/entity"
)

// AnnotationUsecase はアノテーションパイプラインのユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type AnnotationUsecase interface {
	Annotate(ctx context.Context, cred entity.Credential, imageData []byte, contentType string, metadata map[string]string) (*entity.Annotation, error)
	GetAnnotation(ctx context.Context, id string) (*entity.Annotation, error)
	ListAnnotations(ctx context.Context, filter map[string]string) ([]entity.Annotation, error)
	DeleteAnnotation(ctx context.Context, cred entity.Credential, id string) error
	DescribeScene(ctx context.Context, cred entity.Credential, id string) (string, error)
}

// AnnotationHandler はアノテーションAPIのHTTPリクエストを処理します。
// ビジネスロジックは持たず、HTTPとユースケースの変換だけを行います。
type AnnotationHandler struct {
	uc AnnotationUsecase
}

// NewAnnotationHandler はAnnotationHandlerの新しいインスタンスを生成します。
func NewAnnotationHandler(uc AnnotationUsecase) *AnnotationHandler {
	return &AnnotationHandler{uc: uc}
}

// CredentialFromRequest はリクエストヘッダーから認証情報を抽出します。
// X-Client-Id / X-Client-Secret のペア、または Authorization: Bearer を受け付けます。
func CredentialFromRequest(c *gin.Context) entity.Credential {
	cred := entity.Credential{
		ClientID:     c.GetHeader("X-Client-Id"),
		ClientSecret: c.GetHeader("X-Client-Secret"),
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		cred.BearerToken = strings.TrimPrefix(auth, "Bearer ")
	}
	return cred
}

// Create は画像をアップロードしてアノテーションを作成します。
//
// エンドポイント: POST /v1/annotations
// Content-Type: multipart/form-data
// フィールド: image（画像ファイル）、metadata（任意、文字列から文字列へのJSONオブジェクト）
func (h *AnnotationHandler) Create(c *gin.Context) {
	cred := CredentialFromRequest(c)

	file, err := c.FormFile("image")
	if err != nil {
		slog.Warn("画像ファイルの取得に失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "image file is required"})
		return
	}

	f, err := file.Open()
	if err != nil {
		slog.Error("画像ファイルのオープンに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("画像ファイルのクローズに失敗", "error", err)
		}
	}()

	imageData, err := io.ReadAll(f)
	if err != nil {
		slog.Error("画像データの読み取りに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return
	}

	var metadata map[string]string
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			slog.Warn("メタデータのパースに失敗", "error", err, "remote_addr", c.ClientIP())
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "metadata must be a JSON object of strings"})
			return
		}
	}

	a, err := h.uc.Annotate(c.Request.Context(), cred, imageData, file.Header.Get("Content-Type"), metadata)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, api.NewAnnotationResponse(a))
}

// Get はIDでアノテーションを取得します。
//
// エンドポイント: GET /v1/annotations/:id
func (h *AnnotationHandler) Get(c *gin.Context) {
	a, err := h.uc.GetAnnotation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.NewAnnotationResponse(a))
}

// List はメタデータフィルタに一致するアノテーションの一覧を返します。
// クエリパラメータはすべてメタデータのキー/値述語として扱います。
//
// エンドポイント: GET /v1/annotations?key=value
func (h *AnnotationHandler) List(c *gin.Context) {
	filter := map[string]string{}
	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 {
			filter[k] = vs[0]
		}
	}

	annotations, err := h.uc.ListAnnotations(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]api.AnnotationResponse, 0, len(annotations))
	for i := range annotations {
		out = append(out, api.NewAnnotationResponse(&annotations[i]))
	}
	c.JSON(http.StatusOK, out)
}

// Delete はアノテーションを削除する管理エンドポイントです。
//
// エンドポイント: DELETE /v1/annotations/:id
func (h *AnnotationHandler) Delete(c *gin.Context) {
	cred := CredentialFromRequest(c)
	if err := h.uc.DeleteAnnotation(c.Request.Context(), cred, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Describe は保存済みアノテーションからシーン説明を生成します。
//
// エンドポイント: POST /v1/annotations/:id/describe
func (h *AnnotationHandler) Describe(c *gin.Context) {
	cred := CredentialFromRequest(c)
	id := c.Param("id")

	description, err := h.uc.DescribeScene(c.Request.Context(), cred, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DescriptionResponse{AnnotationID: id, Description: description})
}

// writeError はドメインエラーをHTTPステータスへ変換します。
// 生の内部エラーはログに残し、クライアントには種別だけを返します。
func (h *AnnotationHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid client credentials"})
	case errors.Is(err, domain.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid or unsupported image"})
	case errors.Is(err, domain.ErrInvalidModelOutput):
		slog.Error("モデル出力の正規化に失敗", "error", err)
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "detection produced invalid output"})
	case errors.Is(err, domain.ErrAnnotationNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "annotation not found"})
	case errors.Is(err, domain.ErrInferenceFailed):
		slog.Error("検出バックエンドでエラー", "error", err)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "object detection failed"})
	case errors.Is(err, domain.ErrPersistenceFailed):
		slog.Error("アノテーションの永続化に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to persist annotation"})
	default:
		slog.Error("未分類のエラー", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
	}
}

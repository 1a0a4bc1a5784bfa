// Package api はHTTP層のリクエスト/レスポンスDTOを定義します。
package api

import (
	"time"

	"vision_backend/internal/feature/annotation/domain/entity"
)

// ErrorResponse はエラーレスポンスの共通形式です。
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse は成功メッセージの共通形式です。
type MessageResponse struct {
	Message string `json:"message"`
}

// TokenRequest はクライアントクレデンシャルグラントのリクエストです。
type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

// TokenResponse は発行されたアクセストークンです。
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// DetectionResponse は検出されたオブジェクト1件のレスポンス表現です。
type DetectionResponse struct {
	Label      string     `json:"label"`
	Confidence float32    `json:"confidence"`
	Box        [4]float64 `json:"box"`
	Invalid    bool       `json:"invalid,omitempty"`
}

// AnnotationResponse はアノテーションレコードのレスポンス表現です。
type AnnotationResponse struct {
	ID         string              `json:"id"`
	Checksum   string              `json:"checksum"`
	CreatedAt  time.Time           `json:"created_at"`
	Detections []DetectionResponse `json:"detections"`
	Metadata   map[string]string   `json:"metadata,omitempty"`
}

// DescriptionResponse はシーン説明のレスポンスです。
type DescriptionResponse struct {
	AnnotationID string `json:"annotation_id"`
	Description  string `json:"description"`
}

// NewAnnotationResponse はドメインエンティティをレスポンスDTOへ変換します。
func NewAnnotationResponse(a *entity.Annotation) AnnotationResponse {
	dets := make([]DetectionResponse, 0, len(a.Detections))
	for _, d := range a.Detections {
		dets = append(dets, DetectionResponse{
			Label:      d.Label,
			Confidence: d.Confidence,
			Box:        d.Box,
			Invalid:    d.Invalid,
		})
	}
	return AnnotationResponse{
		ID:         a.ID,
		Checksum:   a.Checksum,
		CreatedAt:  a.CreatedAt,
		Detections: dets,
		Metadata:   a.Metadata,
	}
}

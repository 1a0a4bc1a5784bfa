package di

import (
	"context"
	"fmt"

	"vision_backend/internal/config"
	"vision_backend/internal/feature/annotation/adapters/vision"
	"vision_backend/internal/feature/annotation/adapters/yolo"
	"vision_backend/internal/feature/annotation/usecase"
	infrahttp "vision_backend/internal/platform/http"
)

// NewObjectDetector creates the configured detection backend.
// The returned cleanup releases backend resources.
func NewObjectDetector(ctx context.Context, cfg *config.Config) (usecase.ObjectDetector, func(), error) {
	switch cfg.Detector {
	case "vision":
		detector, err := vision.NewObjectDetector(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create vision detector: %w", err)
		}
		return detector, func() { _ = detector.Close() }, nil
	case "yolo", "":
		// 推論は数秒かかり得るため、リクエスト全体のタイムアウトを渡す
		httpClient := infrahttp.NewHTTPClient(cfg.RequestTimeout)
		return yolo.NewClient(cfg.InferenceURL, httpClient, cfg.MinConfidence), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown detector backend %q", cfg.Detector)
	}
}

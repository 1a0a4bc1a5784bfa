// Package vision はGoogle Cloud Vision APIを使用するObjectDetector実装を提供します。
package vision

import (
	"context"
	"fmt"
	"log/slog"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"vision_backend/internal/feature/annotation/domain"
	"vision_backend/internal/feature/annotation/domain/entity"
	"vision_backend/internal/feature/annotation/usecase"
	"vision_backend/internal/platform/imaging"
)

// ObjectDetector はCloud Vision APIのオブジェクトローカライズで検出を行います。
// APIクライアントは並行利用に対して安全なため、直列化は不要です。
type ObjectDetector struct {
	client *gvision.ImageAnnotatorClient
}

// ObjectDetectorがusecase.ObjectDetectorを実装していることをコンパイル時に検証します。
var _ usecase.ObjectDetector = (*ObjectDetector)(nil)

// NewObjectDetector はADCを使用してObjectDetectorの新しいインスタンスを生成します。
func NewObjectDetector(ctx context.Context) (*ObjectDetector, error) {
	client, err := gvision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &ObjectDetector{client: client}, nil
}

// Close はVision APIクライアントを解放します。
func (v *ObjectDetector) Close() error {
	return v.client.Close()
}

// Detect は画像を検証してからオブジェクトローカライズを実行し、
// 正規化頂点をピクセル座標のDetectionへ変換します。
func (v *ObjectDetector) Detect(ctx context.Context, imageData []byte, contentType string) ([]entity.Detection, error) {
	bounds, err := imaging.Decode(imageData, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: imageData},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_OBJECT_LOCALIZATION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		slog.Error("vision API request failed", "error", err)
		return nil, fmt.Errorf("%w: vision API request failed", domain.ErrInferenceFailed)
	}

	if len(resp.Responses) == 0 {
		return nil, nil
	}
	if apiErr := resp.Responses[0].Error; apiErr != nil {
		slog.Error("vision API returned error", "message", apiErr.Message)
		return nil, fmt.Errorf("%w: vision API error", domain.ErrInferenceFailed)
	}

	objects := resp.Responses[0].LocalizedObjectAnnotations
	detections := make([]entity.Detection, 0, len(objects))
	for _, obj := range objects {
		if obj.Name == "" {
			// 名前のない検出は境界でのデータ破損として扱う
			return nil, fmt.Errorf("%w: localized object without a name", domain.ErrInvalidModelOutput)
		}
		box, ok := pixelBox(obj.BoundingPoly, bounds)
		if !ok {
			return nil, fmt.Errorf("%w: bounding poly without vertices", domain.ErrInvalidModelOutput)
		}
		detections = append(detections, entity.Detection{
			Label:      obj.Name,
			Confidence: obj.Score,
			Box:        box,
			Invalid:    !bounds.Contains(box),
		})
	}
	return detections, nil
}

// pixelBox は正規化頂点の外接矩形をピクセル座標 [x1,y1,x2,y2] に変換します。
func pixelBox(poly *visionpb.BoundingPoly, bounds imaging.Bounds) ([4]float64, bool) {
	if poly == nil || len(poly.NormalizedVertices) == 0 {
		return [4]float64{}, false
	}
	minX, minY := float64(1), float64(1)
	maxX, maxY := float64(0), float64(0)
	for _, v := range poly.NormalizedVertices {
		x, y := float64(v.X), float64(v.Y)
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}
	w, h := float64(bounds.Width), float64(bounds.Height)
	return [4]float64{minX * w, minY * h, maxX * w, maxY * h}, true
}

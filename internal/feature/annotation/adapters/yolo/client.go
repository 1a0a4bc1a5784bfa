// Package yolo は外部のYOLO推論サービスを呼び出すObjectDetector実装を提供します。
package yolo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"

	"vision_backend/internal/feature/annotation/domain"
	"vision_backend/internal/feature/annotation/domain/entity"
	"vision_backend/internal/feature/annotation/usecase"
	"vision_backend/internal/platform/imaging"
)

// DefaultMinConfidence は検出結果を採用する信頼度の下限です。
const DefaultMinConfidence = 0.5

// rawPrediction は推論サービスが返す生の検出1件です。
// クラスはインデックスのままで、ラベル解決はこのアダプタが行います。
type rawPrediction struct {
	Class int        `json:"class"`
	Score float64    `json:"score"`
	Box   [4]float64 `json:"box"`
}

// predictResponse は推論サービスのレスポンスボディです。
type predictResponse struct {
	Predictions []rawPrediction `json:"predictions"`
}

// Client はYOLO推論サービスへのHTTPクライアントを持つObjectDetector実装です。
//
// 推論サービスは単一のモデルインスタンスを共有しているため、
// 呼び出しはミューテックスで直列化します。並行リクエストが
// モデル内部状態を破壊しないための必須の設計点です。
type Client struct {
	inferenceURL  string
	client        *http.Client
	minConfidence float64

	// mu は共有モデルインスタンスへの呼び出しを直列化します
	mu sync.Mutex
}

// ClientがObjectDetectorを実装していることをコンパイル時に検証します。
var _ usecase.ObjectDetector = (*Client)(nil)

// NewClient は指定された推論サービスURLとHTTPクライアントでClientの新しいインスタンスを生成します。
// minConfidenceが0以下の場合はDefaultMinConfidenceを使用します。
func NewClient(inferenceURL string, client *http.Client, minConfidence float64) *Client {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Client{
		inferenceURL:  inferenceURL,
		client:        client,
		minConfidence: minConfidence,
	}
}

// Detect は画像を検証してから推論サービスに送り、生の予測を
// 正規化済みのDetectionリストへ変換します。
func (c *Client) Detect(ctx context.Context, imageData []byte, contentType string) ([]entity.Detection, error) {
	bounds, err := imaging.Decode(imageData, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}

	// 共有モデルインスタンスの保護（§並行性モデル）
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.invoke(ctx, imageData, contentType)
	if err != nil {
		// 内部原因はログに残し、呼び出し元には種別だけを返す
		slog.Error("inference request failed", "url", c.inferenceURL, "error", err)
		return nil, fmt.Errorf("%w: inference service unreachable", domain.ErrInferenceFailed)
	}

	return c.normalize(raw, bounds)
}

// invoke は画像をmultipartで推論サービスにPOSTし、生の予測を返します。
func (c *Client) invoke(ctx context.Context, imageData []byte, contentType string) ([]rawPrediction, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "image")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageData)); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.inferenceURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("inference http %d", res.StatusCode)
	}

	var decoded predictResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return decoded.Predictions, nil
}

// normalize は生の予測をラベルテーブルで解決し、信頼度の下限で
// フィルタしたDetectionリストを返します。テーブル範囲外のクラス
// インデックスは境界でのデータ破損としてエラーになります。
func (c *Client) normalize(raw []rawPrediction, bounds imaging.Bounds) ([]entity.Detection, error) {
	out := make([]entity.Detection, 0, len(raw))
	for _, p := range raw {
		if p.Class < 0 || p.Class >= len(cocoLabels) {
			return nil, fmt.Errorf("%w: class index %d outside label table", domain.ErrInvalidModelOutput, p.Class)
		}
		if p.Score < 0 || p.Score > 1 {
			return nil, fmt.Errorf("%w: confidence %f outside [0,1]", domain.ErrInvalidModelOutput, p.Score)
		}
		if p.Score < c.minConfidence {
			continue
		}
		out = append(out, entity.Detection{
			Label:      cocoLabels[p.Class],
			Confidence: float32(p.Score),
			Box:        p.Box,
			// 境界外のボックスはクランプせずフラグで示す
			Invalid: !bounds.Contains(p.Box),
		})
	}
	return out, nil
}

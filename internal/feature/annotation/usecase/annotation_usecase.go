// Package usecase はannotationフィーチャーのビジネスロジックを実装します。
package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vision_backend/internal/feature/annotation/domain"
	"vision_backend/internal/feature/annotation/domain/entity"
)

const (
	// DefaultMaxImageSize は画像アップロードの最大サイズ（16MB）です。
	DefaultMaxImageSize = 16 * 1024 * 1024
	// DefaultSaveAttempts はID衝突時の再生成を含む保存試行回数の上限です。
	DefaultSaveAttempts = 3
	// DefaultStoreRetries はストア接続障害時のリトライ回数の上限です。
	DefaultStoreRetries = 3
	// DefaultRetryBackoff はストアリトライの初期バックオフ時間です（指数的に倍増）。
	DefaultRetryBackoff = 100 * time.Millisecond
	// DefaultListLimit は一覧取得の最大件数です。
	DefaultListLimit = 100
	// DescribePromptTemplate はシーン説明生成のプロンプトテンプレートです。
	DescribePromptTemplate = "Describe in one or two sentences a photo containing the following detected objects: %s."
)

// CredentialGate はクライアント認証情報を検証するインターフェースです。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type CredentialGate interface {
	// Authenticate は認証情報を検証し、不正な場合はdomain.ErrUnauthorizedを返します。
	Authenticate(cred entity.Credential) error
}

// ObjectDetector は画像からオブジェクトを検出するインターフェースです。
// 不透明な検出能力（モデル）を単一呼び出しの境界に抽象化し、
// テストでは決定的なスタブに差し替えられるようにします。
type ObjectDetector interface {
	// Detect は画像バイト列からオブジェクトを検出し、正規化済みの検出結果を返します。
	Detect(ctx context.Context, imageData []byte, contentType string) ([]entity.Detection, error)
}

// AnnotationIterator はクエリ結果を1回だけ走査できる遅延シーケンスです。
// mongoドライバのカーソルと同じ使い方をします。
type AnnotationIterator interface {
	// Next は次のアノテーションへ進み、結果が尽きたらfalseを返します。
	Next(ctx context.Context) bool
	// Annotation は現在位置のアノテーションを返します。
	Annotation() *entity.Annotation
	// Err は走査中に発生したエラーを返します。
	Err() error
	// Close はイテレータの資源を解放します。
	Close(ctx context.Context) error
}

// AnnotationRepository はアノテーションの永続化層を抽象化します。
// ストア自身はリトライしません。接続障害のリトライは呼び出し元（usecase）の責務です。
type AnnotationRepository interface {
	// Save はアノテーションを保存します。IDが既に存在する場合は
	// domain.ErrConflictingID、ストアに到達できない場合はdomain.ErrStoreUnavailableを返します。
	Save(ctx context.Context, a *entity.Annotation) error
	// FindByID はIDでアノテーションを取得します。
	// 存在しない場合はdomain.ErrAnnotationNotFoundを返します。
	FindByID(ctx context.Context, id string) (*entity.Annotation, error)
	// FindByMetadata はメタデータのキー/値述語に一致するアノテーションの
	// 遅延シーケンスを返します。順序はcreated_at降順、ID昇順で決定的です。
	FindByMetadata(ctx context.Context, filter map[string]string) (AnnotationIterator, error)
	// Delete はアノテーションを削除します（管理操作）。
	// 存在しない場合はdomain.ErrAnnotationNotFoundを返します。
	Delete(ctx context.Context, id string) error
}

// SceneDescriber は検出ラベルからシーン説明を生成するインターフェースです。
type SceneDescriber interface {
	// Describe はプロンプトから説明文を生成します。
	Describe(ctx context.Context, prompt string) (string, error)
}

// RetryConfig は永続化リトライの調整値です。ゼロ値はデフォルトになります。
type RetryConfig struct {
	SaveAttempts int           // ID再生成を含む保存試行回数
	StoreRetries int           // ErrStoreUnavailable時のリトライ回数
	Backoff      time.Duration // 初期バックオフ（指数的に倍増）
	MaxImageSize int           // 受け付ける画像の最大バイト数
	ListLimit    int           // 一覧取得の最大件数
}

// annotationUsecase はアノテーションパイプラインのビジネスロジックを提供します。
// パイプライン内で永続的な副作用を持つのはSaveの呼び出しだけです。
type annotationUsecase struct {
	gate      CredentialGate
	detector  ObjectDetector
	store     AnnotationRepository
	describer SceneDescriber

	saveAttempts int
	storeRetries int
	backoff      time.Duration
	maxImageSize int
	listLimit    int
}

// NewAnnotationUsecase はannotationUsecaseの新しいインスタンスを生成します。
// describerはnil可です（シーン説明機能が無効になります）。
func NewAnnotationUsecase(gate CredentialGate, detector ObjectDetector, store AnnotationRepository,
	describer SceneDescriber, retry RetryConfig) *annotationUsecase {
	if retry.SaveAttempts <= 0 {
		retry.SaveAttempts = DefaultSaveAttempts
	}
	if retry.StoreRetries <= 0 {
		retry.StoreRetries = DefaultStoreRetries
	}
	if retry.Backoff <= 0 {
		retry.Backoff = DefaultRetryBackoff
	}
	if retry.MaxImageSize <= 0 {
		retry.MaxImageSize = DefaultMaxImageSize
	}
	if retry.ListLimit <= 0 {
		retry.ListLimit = DefaultListLimit
	}
	return &annotationUsecase{
		gate:         gate,
		detector:     detector,
		store:        store,
		describer:    describer,
		saveAttempts: retry.SaveAttempts,
		storeRetries: retry.StoreRetries,
		backoff:      retry.Backoff,
		maxImageSize: retry.MaxImageSize,
		listLimit:    retry.ListLimit,
	}
}

// Annotate は認証 → 画像検証 → 検出 → レコード組み立て → 永続化の順で
// パイプラインを実行します。認証失敗時は推論もストア書き込みも行いません。
func (u *annotationUsecase) Annotate(ctx context.Context, cred entity.Credential,
	imageData []byte, contentType string, metadata map[string]string) (*entity.Annotation, error) {
	// 認証ゲート。失敗時は高コストな処理に入る前に打ち切る
	if err := u.gate.Authenticate(cred); err != nil {
		return nil, err
	}

	if len(imageData) == 0 {
		return nil, fmt.Errorf("%w: image data is empty", domain.ErrInvalidImage)
	}
	if len(imageData) > u.maxImageSize {
		return nil, fmt.Errorf("%w: image exceeds maximum of %d bytes", domain.ErrInvalidImage, u.maxImageSize)
	}

	detections, err := u.detector.Detect(ctx, imageData, contentType)
	if err != nil {
		// 検出エラーはアダプタで既にドメインエラーへ対応付けられている
		return nil, err
	}

	sum := sha256.Sum256(imageData)
	a := &entity.Annotation{
		ID:         uuid.NewString(),
		Checksum:   hex.EncodeToString(sum[:]),
		CreatedAt:  time.Now().UTC(),
		Detections: detections,
		Metadata:   metadata,
	}

	if err := u.persist(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// persist はID衝突時の再生成と接続障害時のバックオフリトライを適用して保存します。
func (u *annotationUsecase) persist(ctx context.Context, a *entity.Annotation) error {
	var err error
	for attempt := 0; attempt < u.saveAttempts; attempt++ {
		err = u.saveWithBackoff(ctx, a)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrConflictingID) {
			// 衝突したIDを再生成して再試行
			slog.Warn("annotation id collision, regenerating", "id", a.ID, "attempt", attempt+1)
			a.ID = uuid.NewString()
			continue
		}
		break
	}
	slog.Error("annotation persistence failed", "id", a.ID, "error", err)
	return fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
}

// saveWithBackoff はErrStoreUnavailableに限り指数バックオフでリトライします。
func (u *annotationUsecase) saveWithBackoff(ctx context.Context, a *entity.Annotation) error {
	backoff := u.backoff
	var err error
	for i := 0; i < u.storeRetries; i++ {
		err = u.store.Save(ctx, a)
		if err == nil || !errors.Is(err, domain.ErrStoreUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// GetAnnotation はIDでアノテーションを取得するストアへの薄いパススルーです。
func (u *annotationUsecase) GetAnnotation(ctx context.Context, id string) (*entity.Annotation, error) {
	if id == "" {
		return nil, domain.ErrAnnotationNotFound
	}
	return u.store.FindByID(ctx, id)
}

// ListAnnotations はメタデータフィルタに一致するアノテーションを返します。
// 遅延イテレータを上限件数まで消費します。
func (u *annotationUsecase) ListAnnotations(ctx context.Context, filter map[string]string) ([]entity.Annotation, error) {
	it, err := u.store.FindByMetadata(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := it.Close(ctx); err != nil {
			slog.Warn("failed to close annotation iterator", "error", err)
		}
	}()

	out := make([]entity.Annotation, 0)
	for len(out) < u.listLimit && it.Next(ctx) {
		out = append(out, *it.Annotation())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAnnotation はアノテーションを削除する管理操作です。
func (u *annotationUsecase) DeleteAnnotation(ctx context.Context, cred entity.Credential, id string) error {
	if err := u.gate.Authenticate(cred); err != nil {
		return err
	}
	if id == "" {
		return domain.ErrAnnotationNotFound
	}
	return u.store.Delete(ctx, id)
}

// DescribeScene は保存済みアノテーションの検出ラベルからシーン説明を生成します。
// 画像そのものは保存されていないため、外部へ送られるのはラベルだけです。
func (u *annotationUsecase) DescribeScene(ctx context.Context, cred entity.Credential, id string) (string, error) {
	if err := u.gate.Authenticate(cred); err != nil {
		return "", err
	}
	if u.describer == nil {
		return "", fmt.Errorf("%w: scene description is not configured", domain.ErrInferenceFailed)
	}

	a, err := u.store.FindByID(ctx, id)
	if err != nil {
		return "", err
	}

	labels := make([]string, 0, len(a.Detections))
	for _, d := range a.Detections {
		labels = append(labels, d.Label)
	}
	if len(labels) == 0 {
		// 検出ゼロの画像はモデルに問い合わせない
		return "No objects were detected in this image.", nil
	}

	prompt := fmt.Sprintf(DescribePromptTemplate, strings.Join(labels, ", "))
	summary, err := u.describer.Describe(ctx, prompt)
	if err != nil {
		slog.Error("scene description failed", "annotation_id", id, "error", err)
		return "", fmt.Errorf("%w: %v", domain.ErrInferenceFailed, err)
	}
	return summary, nil
}

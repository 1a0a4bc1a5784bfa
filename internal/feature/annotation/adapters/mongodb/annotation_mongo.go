// Package mongodb はannotationフィーチャーのMongoDBリポジトリ実装を提供します。
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"vision_backend/internal/feature/annotation/domain"
	"vision_backend/internal/feature/annotation/domain/entity"
	"vision_backend/internal/feature/annotation/usecase"
)

// detectionDocument はDetectionのBSON表現です。
type detectionDocument struct {
	Label      string     `bson:"label"`
	Confidence float32    `bson:"confidence"`
	Box        [4]float64 `bson:"box"`
	Invalid    bool       `bson:"invalid,omitempty"`
}

// annotationDocument はAnnotationのBSON表現です。IDが_idになります。
type annotationDocument struct {
	ID         string              `bson:"_id"`
	Checksum   string              `bson:"checksum"`
	CreatedAt  time.Time           `bson:"created_at"`
	Detections []detectionDocument `bson:"detections"`
	Metadata   map[string]string   `bson:"metadata,omitempty"`
}

// annotationMongo はAnnotationRepositoryインターフェースのMongoDB実装です。
// ストア自身はリトライしません。薄くテスト可能な境界に保つためです。
type annotationMongo struct {
	col *mongo.Collection
}

// annotationMongoがAnnotationRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.AnnotationRepository = (*annotationMongo)(nil)

// NewAnnotationMongo は指定されたコレクションでannotationMongoの新しいインスタンスを生成します。
// 依存性注入用のコンストラクタです。コレクションハンドルはプロセスで1つを共有します。
func NewAnnotationMongo(col *mongo.Collection) *annotationMongo {
	return &annotationMongo{col: col}
}

// Save はアノテーションをインデックスに登録します。
// IDが重複している場合はdomain.ErrConflictingIDを返します。
func (r *annotationMongo) Save(ctx context.Context, a *entity.Annotation) error {
	if _, err := r.col.InsertOne(ctx, toDocument(a)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflictingID
		}
		return storeError(err)
	}
	return nil
}

// FindByID はIDでアノテーションを取得します。
// 存在しない場合はdomain.ErrAnnotationNotFoundを返します。
func (r *annotationMongo) FindByID(ctx context.Context, id string) (*entity.Annotation, error) {
	var doc annotationDocument
	if err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAnnotationNotFound
		}
		return nil, storeError(err)
	}
	return toEntity(&doc), nil
}

// FindByMetadata はメタデータ述語に一致するアノテーションの遅延カーソルを返します。
// 順序はcreated_at降順、_id昇順で、データセットが同じなら決定的です。
func (r *annotationMongo) FindByMetadata(ctx context.Context, filter map[string]string) (usecase.AnnotationIterator, error) {
	query := bson.D{}
	for k, v := range filter {
		query = append(query, bson.E{Key: "metadata." + k, Value: v})
	}

	cur, err := r.col.Find(ctx, query,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, storeError(err)
	}
	return &cursorIterator{cur: cur}, nil
}

// Delete はアノテーションを削除する管理操作です。
func (r *annotationMongo) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return storeError(err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrAnnotationNotFound
	}
	return nil
}

// cursorIterator はmongoカーソルをAnnotationIteratorとして公開します。
// 1回だけ走査でき、巻き戻しはできません。
type cursorIterator struct {
	cur     *mongo.Cursor
	current *entity.Annotation
	err     error
}

func (it *cursorIterator) Next(ctx context.Context) bool {
	if it.err != nil || !it.cur.Next(ctx) {
		return false
	}
	var doc annotationDocument
	if err := it.cur.Decode(&doc); err != nil {
		it.err = err
		return false
	}
	it.current = toEntity(&doc)
	return true
}

func (it *cursorIterator) Annotation() *entity.Annotation { return it.current }

func (it *cursorIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.cur.Err()
}

func (it *cursorIterator) Close(ctx context.Context) error { return it.cur.Close(ctx) }

// storeError は接続系の失敗をdomain.ErrStoreUnavailableへ対応付けます。
func storeError(err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func toDocument(a *entity.Annotation) *annotationDocument {
	dets := make([]detectionDocument, 0, len(a.Detections))
	for _, d := range a.Detections {
		dets = append(dets, detectionDocument(d))
	}
	return &annotationDocument{
		ID:         a.ID,
		Checksum:   a.Checksum,
		CreatedAt:  a.CreatedAt,
		Detections: dets,
		Metadata:   a.Metadata,
	}
}

func toEntity(doc *annotationDocument) *entity.Annotation {
	dets := make([]entity.Detection, 0, len(doc.Detections))
	for _, d := range doc.Detections {
		dets = append(dets, entity.Detection(d))
	}
	return &entity.Annotation{
		ID:         doc.ID,
		Checksum:   doc.Checksum,
		CreatedAt:  doc.CreatedAt,
		Detections: dets,
		Metadata:   doc.Metadata,
	}
}

// Package gormstore はannotationフィーチャーのリレーショナルDBリポジトリ実装を提供します。
// MongoDBが構成されていない環境向けのフォールバックで、SQLiteとPostgreSQLに対応します。
package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vision_backend/internal/feature/annotation/domain"
	"vision_backend/internal/feature/annotation/domain/entity"
	"vision_backend/internal/feature/annotation/usecase"
)

// AnnotationModel はannotationsテーブルのGORMモデルです。
// 検出結果とメタデータはJSON文字列のカラムに直列化します。
type AnnotationModel struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Checksum   string    `gorm:"size:64;index"`
	CreatedAt  time.Time `gorm:"index"`
	Detections string
	Metadata   string
}

// TableName はGORMのテーブル名を指定します。
func (AnnotationModel) TableName() string { return "annotations" }

// annotationGorm はAnnotationRepositoryインターフェースのGORM実装です。
type annotationGorm struct {
	db *gorm.DB
}

// annotationGormがAnnotationRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.AnnotationRepository = (*annotationGorm)(nil)

// NewAnnotationGorm は指定されたgorm.DB接続でannotationGormの新しいインスタンスを生成します。
// 依存性注入用のコンストラクタです。gorm.ConfigのTranslateErrorが有効である必要があります。
func NewAnnotationGorm(db *gorm.DB) *annotationGorm {
	return &annotationGorm{db: db}
}

// Save はアノテーションを保存します。
// IDが重複している場合はdomain.ErrConflictingIDを返します。
func (r *annotationGorm) Save(ctx context.Context, a *entity.Annotation) error {
	model, err := toModel(a)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflictingID
		}
		return storeError(err)
	}
	return nil
}

// FindByID はIDでアノテーションを取得します。
// 存在しない場合はdomain.ErrAnnotationNotFoundを返します。
func (r *annotationGorm) FindByID(ctx context.Context, id string) (*entity.Annotation, error) {
	var model AnnotationModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAnnotationNotFound
		}
		return nil, storeError(err)
	}
	return toEntity(&model)
}

// FindByMetadata はメタデータ述語に一致するアノテーションの遅延シーケンスを返します。
// 行を作成日時降順・ID昇順でストリームし、述語はスキャンしながら適用します。
func (r *annotationGorm) FindByMetadata(ctx context.Context, filter map[string]string) (usecase.AnnotationIterator, error) {
	rows, err := r.db.WithContext(ctx).Model(&AnnotationModel{}).
		Order("created_at DESC, id ASC").Rows()
	if err != nil {
		return nil, storeError(err)
	}
	return &rowsIterator{db: r.db, rows: rows, filter: filter}, nil
}

// Delete はアノテーションを削除する管理操作です。
func (r *annotationGorm) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&AnnotationModel{})
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrAnnotationNotFound
	}
	return nil
}

// rowsIterator は行ストリームをAnnotationIteratorとして公開します。
// メタデータ述語に一致しない行はスキップします。
type rowsIterator struct {
	db      *gorm.DB
	rows    *sql.Rows
	filter  map[string]string
	current *entity.Annotation
	err     error
}

func (it *rowsIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for it.rows.Next() {
		var model AnnotationModel
		if err := it.db.ScanRows(it.rows, &model); err != nil {
			it.err = err
			return false
		}
		a, err := toEntity(&model)
		if err != nil {
			it.err = err
			return false
		}
		if !matches(a.Metadata, it.filter) {
			continue
		}
		it.current = a
		return true
	}
	return false
}

func (it *rowsIterator) Annotation() *entity.Annotation { return it.current }

func (it *rowsIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *rowsIterator) Close(context.Context) error { return it.rows.Close() }

// matches はすべてのフィルタキー/値がメタデータに含まれるかを返します。
func matches(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// storeError は接続系の失敗をdomain.ErrStoreUnavailableへ対応付けます。
func storeError(err error) error {
	if errors.Is(err, gorm.ErrInvalidDB) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func toModel(a *entity.Annotation) (*AnnotationModel, error) {
	dets, err := json.Marshal(a.Detections)
	if err != nil {
		return nil, fmt.Errorf("marshal detections: %w", err)
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return &AnnotationModel{
		ID:         a.ID,
		Checksum:   a.Checksum,
		CreatedAt:  a.CreatedAt,
		Detections: string(dets),
		Metadata:   string(meta),
	}, nil
}

func toEntity(m *AnnotationModel) (*entity.Annotation, error) {
	a := &entity.Annotation{
		ID:        m.ID,
		Checksum:  m.Checksum,
		CreatedAt: m.CreatedAt,
	}
	if err := json.Unmarshal([]byte(m.Detections), &a.Detections); err != nil {
		return nil, fmt.Errorf("unmarshal detections: %w", err)
	}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return a, nil
}

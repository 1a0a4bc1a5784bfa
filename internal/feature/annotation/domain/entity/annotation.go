// Package entity はannotationフィーチャーのドメインモデルを定義します。
package entity

import "time"

// Detection は画像から検出された1つのオブジェクトを表します。
// 生成後は変更されません。
type Detection struct {
	Label      string     // 検出されたオブジェクトのラベル
	Confidence float32    // 信頼度スコア（0.0 ~ 1.0）
	Box        [4]float64 // バウンディングボックス [x1, y1, x2, y2]（ピクセル座標、左上原点）
	Invalid    bool       // 座標が画像境界外の場合にtrue（クランプせずフラグで示す）
}

// Annotation は1枚の投稿画像に対する検出結果の永続化レコードです。
// 作成後は追記専用で、更新されることはありません（削除は管理操作のみ）。
type Annotation struct {
	ID         string            // ストア全体で一意な識別子（作成時に生成）
	Checksum   string            // 元画像のSHA-256チェックサム（画像そのものは保存しない）
	CreatedAt  time.Time         // 作成タイムスタンプ（UTC）
	Detections []Detection       // 検出結果の順序付きリスト
	Metadata   map[string]string // 呼び出し元が付与した任意のメタデータ
}

// Credential はクライアント認証情報を表します。
// ID/シークレットのペア、またはトークンエンドポイントで発行された
// Bearerトークンのいずれかで認証します。
type Credential struct {
	ClientID     string
	ClientSecret string
	BearerToken  string
}

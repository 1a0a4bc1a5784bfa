// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health は /healthz の導通確認リクエストを処理します。
// ロードバランサーによってはGET以外でも疎通確認が来るため、
// HEADとOPTIONSにはボディなしで応答します。
func Health(c *gin.Context) {
	// ヘルスチェック結果は監視側に都度評価させる
	c.Header("Cache-Control", "no-store")

	switch c.Request.Method {
	case http.MethodHead:
		c.Status(http.StatusOK)
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"vision_backend/internal/api"
	annotationhandler "vision_backend/internal/feature/annotation/transport/handler"
	phandler "vision_backend/internal/platform/http/handler"
)

func NewRouter(annotations *annotationhandler.AnnotationHandler,
	token *annotationhandler.TokenHandler, requestTimeout time.Duration) *gin.Engine {
	r := gin.Default()

	// 認証不要
	// 導通確認用
	r.GET("/healthz", phandler.Health)
	// API契約の公開（機械可読な定義と対話的ドキュメント）
	r.GET("/openapi.yaml", api.ServeOpenAPI)
	r.GET("/docs", api.ServeDocs)

	// v1 API
	// タイムアウトはAPI境界で強制する（進行中の処理までは中断しない）
	timeout := func(h gin.HandlerFunc) gin.HandlerFunc {
		return phandler.Timeout(requestTimeout, h)
	}
	v1 := r.Group("/v1")
	{
		// クライアントクレデンシャルをアクセストークンへ交換
		v1.POST("/token", timeout(token.Issue))

		// アノテーションパイプライン
		// 認証はハンドラーが抽出した認証情報をユースケースのゲートが検証する
		v1.POST("/annotations", timeout(annotations.Create))
		v1.GET("/annotations", timeout(annotations.List))
		v1.GET("/annotations/:id", timeout(annotations.Get))
		v1.DELETE("/annotations/:id", timeout(annotations.Delete))
		v1.POST("/annotations/:id/describe", timeout(annotations.Describe))
	}

	return r
}

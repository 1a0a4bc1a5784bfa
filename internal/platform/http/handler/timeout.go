package handler

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout はハンドラーをラップし、リクエスト境界でタイムアウトを強制します。
//
// ハンドラーはコンテキストのコピーとバッファされたライターに対して実行され、
// 期限内に完了した場合だけバッファを実レスポンスへ反映します。期限を過ぎた
// 場合は504を返して待機を打ち切りますが、進行中の推論やストア書き込みは
// 完了（または失敗）まで走り続け、遅延書き込みはバッファ内で完結します。
// プールされたコンテキストと実ライターは504送出後には一切触れません。
// 負荷時にはリソースを占有し続けるリスクとして把握しておくこと。
func Timeout(d time.Duration, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		cp := c.Copy()
		cp.Request = cp.Request.WithContext(ctx)
		buf := newBufferedWriter()
		cp.Writer = buf

		done := make(chan struct{})
		panicked := make(chan any, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
					return
				}
				close(done)
			}()
			h(cp)
		}()

		select {
		case <-done:
			buf.flushTo(c.Writer)
		case p := <-panicked:
			// ゴルーチン内のパニックはgin.Recoveryに届かないためここで処理する
			slog.Error("handler panicked", "panic", p)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
		}
	}
}

// bufferedWriter はレスポンスをメモリに蓄えるgin.ResponseWriter実装です。
// ハンドラーゴルーチンだけが書き込み、flushToはdone受信後に呼ばれるため
// ロックは不要です。
type bufferedWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
}

var _ gin.ResponseWriter = (*bufferedWriter)(nil)

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

// flushTo はバッファの内容を実レスポンスへ書き出します。
func (w *bufferedWriter) flushTo(dst gin.ResponseWriter) {
	for k, vs := range w.header {
		dst.Header()[k] = vs
	}
	dst.WriteHeader(w.Status())
	if w.body.Len() > 0 {
		_, _ = dst.Write(w.body.Bytes())
	}
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) { return w.body.Write(b) }

func (w *bufferedWriter) WriteString(s string) (int, error) { return w.body.WriteString(s) }

func (w *bufferedWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *bufferedWriter) Size() int { return w.body.Len() }

func (w *bufferedWriter) Written() bool { return w.status != 0 || w.body.Len() > 0 }

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Flush() {}

func (w *bufferedWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, http.ErrNotSupported
}

func (w *bufferedWriter) CloseNotify() <-chan bool { return nil }

func (w *bufferedWriter) Pusher() http.Pusher { return nil }

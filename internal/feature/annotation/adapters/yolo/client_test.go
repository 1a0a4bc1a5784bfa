package yolo

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vision_backend/internal/feature/annotation/domain"
)

// encodePNG は指定サイズのPNG画像バイト列を生成するテストヘルパーです。
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

// newInferenceServer は固定レスポンスを返す推論サービスのスタブを起動します。
func newInferenceServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		_, _, err := r.FormFile("image")
		assert.NoError(t, err)

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Detect(t *testing.T) {
	img := encodePNG(t, 640, 480)

	t.Run("normalizes predictions", func(t *testing.T) {
		srv := newInferenceServer(t, http.StatusOK, `{"predictions":[
			{"class":16,"score":0.92,"box":[10,20,110,220]},
			{"class":0,"score":0.81,"box":[300,100,400,300]}
		]}`)
		c := NewClient(srv.URL, srv.Client(), 0.5)

		detections, err := c.Detect(t.Context(), img, "image/png")
		require.NoError(t, err)
		require.Len(t, detections, 2)

		assert.Equal(t, "dog", detections[0].Label)
		assert.InDelta(t, 0.92, detections[0].Confidence, 1e-6)
		assert.Equal(t, [4]float64{10, 20, 110, 220}, detections[0].Box)
		assert.False(t, detections[0].Invalid)

		assert.Equal(t, "person", detections[1].Label)
	})

	t.Run("filters below minimum confidence", func(t *testing.T) {
		srv := newInferenceServer(t, http.StatusOK, `{"predictions":[
			{"class":0,"score":0.92,"box":[10,20,110,220]},
			{"class":0,"score":0.3,"box":[0,0,50,50]}
		]}`)
		c := NewClient(srv.URL, srv.Client(), 0.5)

		detections, err := c.Detect(t.Context(), img, "image/png")
		require.NoError(t, err)
		assert.Len(t, detections, 1)
	})

	t.Run("flags out of bounds box without clamping", func(t *testing.T) {
		srv := newInferenceServer(t, http.StatusOK, `{"predictions":[
			{"class":0,"score":0.9,"box":[600,400,700,500]}
		]}`)
		c := NewClient(srv.URL, srv.Client(), 0.5)

		detections, err := c.Detect(t.Context(), img, "image/png")
		require.NoError(t, err)
		require.Len(t, detections, 1)
		assert.True(t, detections[0].Invalid)
		assert.Equal(t, [4]float64{600, 400, 700, 500}, detections[0].Box)
	})

	t.Run("class index outside label table", func(t *testing.T) {
		srv := newInferenceServer(t, http.StatusOK, `{"predictions":[
			{"class":80,"score":0.9,"box":[0,0,10,10]}
		]}`)
		c := NewClient(srv.URL, srv.Client(), 0.5)

		_, err := c.Detect(t.Context(), img, "image/png")
		assert.ErrorIs(t, err, domain.ErrInvalidModelOutput)
	})

	t.Run("confidence outside unit interval", func(t *testing.T) {
		srv := newInferenceServer(t, http.StatusOK, `{"predictions":[
			{"class":0,"score":1.5,"box":[0,0,10,10]}
		]}`)
		c := NewClient(srv.URL, srv.Client(), 0.5)

		_, err := c.Detect(t.Context(), img, "image/png")
		assert.ErrorIs(t, err, domain.ErrInvalidModelOutput)
	})

	t.Run("empty prediction list", func(t *testing.T) {
		srv := newInferenceServer(t, http.StatusOK, `{"predictions":[]}`)
		c := NewClient(srv.URL, srv.Client(), 0.5)

		detections, err := c.Detect(t.Context(), img, "image/png")
		require.NoError(t, err)
		assert.Empty(t, detections)
	})

	t.Run("inference service error", func(t *testing.T) {
		srv := newInferenceServer(t, http.StatusInternalServerError, `{"error":"model crashed"}`)
		c := NewClient(srv.URL, srv.Client(), 0.5)

		_, err := c.Detect(t.Context(), img, "image/png")
		assert.ErrorIs(t, err, domain.ErrInferenceFailed)
	})

	t.Run("unreachable inference service", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1/predict", &http.Client{}, 0.5)

		_, err := c.Detect(t.Context(), img, "image/png")
		assert.ErrorIs(t, err, domain.ErrInferenceFailed)
	})

	t.Run("rejects invalid image before invoking the service", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		t.Cleanup(srv.Close)
		c := NewClient(srv.URL, srv.Client(), 0.5)

		_, err := c.Detect(t.Context(), []byte("not an image"), "image/png")
		assert.ErrorIs(t, err, domain.ErrInvalidImage)

		_, err = c.Detect(t.Context(), img, "application/pdf")
		assert.ErrorIs(t, err, domain.ErrInvalidImage)

		assert.False(t, called, "推論サービスは呼ばれないはず")
	})
}

func TestNewClient_DefaultMinConfidence(t *testing.T) {
	c := NewClient("http://localhost:5000/predict", &http.Client{}, 0)
	assert.Equal(t, DefaultMinConfidence, c.minConfidence)
}

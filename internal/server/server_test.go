package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/mediacache"
	"github.com/aweris/mediacache/internal/metrics"
)

const origin = "http://preview.test"

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T, opts ...mediacache.Option) (*Server, *mediacache.Manager) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	obs, err := metrics.NewPrometheus("", reg)
	require.NoError(t, err)

	opts = append([]mediacache.Option{
		mediacache.WithCacheDir(t.TempDir()),
		mediacache.WithOrigin(origin),
		mediacache.WithLogger(logger),
		mediacache.WithObserver(obs),
	}, opts...)
	m, err := mediacache.Open(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return New(m, Config{Origin: origin, CORS: true, Gatherer: reg, Log: logger}), m
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func upload(t *testing.T, s *Server, profile, name, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/media?profile="+profile, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func blobPath(handle string) string {
	return "/blob/" + handle[strings.LastIndex(handle, "/")+1:]
}

func TestStoreAndServeBlob(t *testing.T) {
	s, _ := newServer(t)

	rec := upload(t, s, "photo", "pic.png", "", pngBytes(t, 120, 90))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var bundle mediacache.ReferenceBundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.True(t, strings.HasPrefix(bundle.Handle, "blob:"+origin+"/"))
	require.NotEmpty(t, bundle.ThumbnailHandle)

	blob := get(s, blobPath(bundle.Handle))
	require.Equal(t, http.StatusOK, blob.Code)
	assert.Equal(t, "image/png", blob.Header().Get("Content-Type"))
	cfg, _, err := image.DecodeConfig(blob.Body)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Width)

	thumb := get(s, "/v1/media/"+blobPath(bundle.Handle)[len("/blob/"):]+"/thumbnail")
	require.Equal(t, http.StatusOK, thumb.Code)
	var tr thumbnailResponse
	require.NoError(t, json.Unmarshal(thumb.Body.Bytes(), &tr))
	assert.Equal(t, bundle.ThumbnailHandle, tr.Handle)
}

func TestStoreErrors(t *testing.T) {
	s, _ := newServer(t)

	rec := upload(t, s, "photo", "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = upload(t, s, "banner", "pic.png", "image/png", pngBytes(t, 4, 4))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s, _ = newServer(t, mediacache.WithProfile("tiny", mediacache.Profile{Kind: "avatar", AvatarSize: 16, MaxUploadBytes: 8}))
	rec = upload(t, s, "tiny", "pic.png", "image/png", pngBytes(t, 8, 8))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = upload(t, s, "tiny", "big.png", "image/png", bytes.Repeat([]byte{0x89}, 128<<10))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "upload exceeds")

	req := httptest.NewRequest(http.MethodPost, "/v1/media", strings.NewReader("x"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveEndpoint(t *testing.T) {
	s, m := newServer(t)

	bundle, err := m.Store(context.Background(), mediacache.RawFile{
		Name: "clip.mp4", MIMEType: "video/mp4", Data: []byte("\x00\x00\x00\x18ftypmp42"),
	}, "photo")
	require.NoError(t, err)

	tests := []struct {
		ref  string
		want resolveResponse
	}{
		{"https://cdn.example.com/x.webp", resolveResponse{URL: "https://cdn.example.com/x.webp"}},
		{"images/hero.webp", resolveResponse{URL: origin + "/images/hero.webp"}},
		{"uploads/a.mov", resolveResponse{URL: origin + "/uploads/a.mov", Video: true}},
		{bundle.Handle, resolveResponse{URL: bundle.Handle, Video: true}},
		{"blob:" + origin + "/gone", resolveResponse{}},
	}
	for _, tt := range tests {
		rec := get(s, "/v1/resolve?ref="+url.QueryEscape(tt.ref))
		require.Equal(t, http.StatusOK, rec.Code)
		var got resolveResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, tt.want, got, tt.ref)
	}
}

func TestClearMakesBlobsStale(t *testing.T) {
	s, _ := newServer(t)

	rec := upload(t, s, "avatar", "me.png", "image/png", pngBytes(t, 40, 40))
	require.Equal(t, http.StatusCreated, rec.Code)
	var bundle mediacache.ReferenceBundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	require.Equal(t, http.StatusOK, get(s, blobPath(bundle.Handle)).Code)

	del := httptest.NewRecorder()
	s.Handler().ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/v1/media", nil))
	assert.Equal(t, http.StatusNoContent, del.Code)

	assert.Equal(t, http.StatusNotFound, get(s, blobPath(bundle.Handle)).Code)

	stats := get(s, "/v1/stats")
	require.Equal(t, http.StatusOK, stats.Code)
	var st mediacache.Stats
	require.NoError(t, json.Unmarshal(stats.Body.Bytes(), &st))
	assert.Zero(t, st.Objects)
	assert.Zero(t, st.LiveHandles)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newServer(t)
	upload(t, s, "photo", "notes.txt", "text/plain", []byte("hello"))

	assert.Equal(t, http.StatusOK, get(s, "/healthz").Code)

	rec := get(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mediacache_stores_total{kind="image",outcome="rejected"} 1`)
}

package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sortvision-gateway/internal/app/services"
	"sortvision-gateway/internal/domain/archive"
	domainauth "sortvision-gateway/internal/domain/auth"
	"sortvision-gateway/internal/domain/blob"
	"sortvision-gateway/internal/domain/feedback"
	domainimage "sortvision-gateway/internal/domain/image"
	"sortvision-gateway/internal/domain/recognition"
	platformtesting "sortvision-gateway/internal/platform/testing"
	httptransport "sortvision-gateway/internal/transport/http"
	"sortvision-gateway/internal/transport/recognizer"
)

const upstreamReply = "--B\r\n" +
	"Content-Disposition: form-data; name=\"metadata\"\r\n\r\n" +
	`{"status":"success","total_objects":2,"results":[` +
	`{"id":1,"detected_class":"bottle","classified_as":"plastik i metal","verdict":"ok","confidence":0.91,"detection_confidence":0.88,"bbox":[1,2,3,4],"file_index":0},` +
	`{"id":2,"detected_class":"banana","classified_as":"bio","verdict":"ok","confidence":0.75,"detection_confidence":0.7,"bbox":[5,6,7,8],"file_index":1}]}` + "\r\n" +
	"--B\r\nContent-Disposition: form-data; name=\"file_0\"; filename=\"crop0.webp\"\r\nContent-Type: image/webp\r\n\r\nIMG0\r\n" +
	"--B\r\nContent-Disposition: form-data; name=\"file_1\"; filename=\"crop1.webp\"\r\nContent-Type: image/webp\r\n\r\nIMG1\r\n" +
	"--B--\r\n"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
}

type gateway struct {
	engine       *gin.Engine
	registry     *blob.MemoryRegistry
	upstreamDown atomic.Bool
	upstreamFail atomic.Bool
}

func newGateway(t *testing.T, tokens *domainauth.AuthToken) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := &gateway{}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			if g.upstreamDown.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/recognize":
			if g.upstreamFail.Load() {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "multipart/form-data; boundary=B")
			_, _ = w.Write([]byte(upstreamReply))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(upstream.Close)

	cfg := platformtesting.SetupTestConfig(t)
	cfg.Recognizer.BaseURL = upstream.URL
	cfg.Web.StaticDir = t.TempDir()

	g.registry = blob.NewMemoryRegistry(cfg.Blobs.BasePath)
	pipeline, err := domainimage.NewPipeline(domainimage.Options{Capture: &cfg.Capture})
	require.NoError(t, err)
	store, err := archive.New(archive.Config{Driver: archive.DriverMemory}, archive.Dependencies{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	fb, err := feedback.NewService(cfg.Feedback, nil, nil)
	require.NoError(t, err)

	scans, err := services.NewScanService(services.ScanServiceConfig{
		Validator:  pipeline,
		Recognizer: recognizer.NewClient(cfg.Recognizer),
		Decoder:    recognition.NewDecoder(g.registry),
		Archive:    store,
		Feedback:   fb,
	})
	require.NoError(t, err)

	router, err := httptransport.Build(httptransport.Options{
		Config:         cfg,
		AuthMiddleware: httptransport.ClientIdentity(tokens, nil),
	})
	require.NoError(t, err)

	svc, err := NewService(Options{Scans: scans, Registry: g.registry, Capture: pipeline})
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), router))

	g.engine = router.Engine
	return g
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="capture.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (g *gateway) do(req *http.Request, clientID string) *httptest.ResponseRecorder {
	if clientID != "" {
		req.Header.Set(httptransport.ClientIDHeader, clientID)
	}
	rec := httptest.NewRecorder()
	g.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) (envelope, T) {
	t.Helper()
	var env envelope
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	var data T
	if len(env.Data) > 0 && string(env.Data) != "null" {
		require.NoError(t, sonic.Unmarshal(env.Data, &data))
	}
	return env, data
}

func TestScanFlow(t *testing.T) {
	g := newGateway(t, nil)

	rec := g.do(uploadRequest(t, "/api/scan", pngBytes(t), map[string]string{"toggle_flag": "true"}), "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env, scan := decode[ScanData](t, rec)
	assert.True(t, env.Success)
	require.Len(t, scan.Results, 2)
	assert.Equal(t, "bottle", scan.Results[0].DetectedClass)
	assert.Equal(t, 0.91, scan.Results[0].Confidence)
	assert.True(t, strings.HasPrefix(scan.Results[0].ImageURL, "/api/blobs/"))
	assert.Equal(t, "crop1.webp", scan.Results[1].Filename)
	assert.Contains(t, scan.UploadURL, "-capture.png")

	rec = g.do(httptest.NewRequest(http.MethodGet, scan.Results[0].ImageURL, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IMG0", rec.Body.String())
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))

	rec = g.do(httptest.NewRequest(http.MethodGet, scan.Results[1].DownloadURL, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename=crop1.webp`, rec.Header().Get("Content-Disposition"))

	rec = g.do(httptest.NewRequest(http.MethodGet, "/api/scan/current", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	_, current := decode[ScanData](t, rec)
	assert.Equal(t, scan.ScanID, current.ScanID)

	rec = g.do(httptest.NewRequest(http.MethodGet, "/api/scan/current", nil), "bob")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = g.do(httptest.NewRequest(http.MethodGet, "/api/scan/history?limit=5", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	_, history := decode[[]archive.ScanRecord](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, scan.ScanID, history[0].ScanID)

	rec = g.do(httptest.NewRequest(http.MethodDelete, "/api/scan/current", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	_, released := decode[ReleaseData](t, rec)
	assert.True(t, released.Released)

	rec = g.do(httptest.NewRequest(http.MethodGet, scan.Results[0].ImageURL, nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, g.registry.Stats().Live)
}

func TestScan_ReplacingReleasesPreviousImages(t *testing.T) {
	g := newGateway(t, nil)

	rec := g.do(uploadRequest(t, "/api/scan", pngBytes(t), nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	_, first := decode[ScanData](t, rec)

	rec = g.do(uploadRequest(t, "/api/scan", pngBytes(t), nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(httptest.NewRequest(http.MethodGet, first.Results[0].ImageURL, nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 2, g.registry.Stats().Live)
}

func TestScan_Errors(t *testing.T) {
	g := newGateway(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, g.do(req, "alice").Code)

	rec := g.do(uploadRequest(t, "/api/scan", []byte("not an image"), nil), "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(uploadRequest(t, "/api/scan", pngBytes(t), map[string]string{"toggle_flag": "maybe"}), "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	g.upstreamFail.Store(true)
	rec = g.do(uploadRequest(t, "/api/scan", pngBytes(t), nil), "alice")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	env, _ := decode[map[string]string](t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, 0, g.registry.Stats().Live)
}

func TestFeedbackAndSave(t *testing.T) {
	g := newGateway(t, nil)

	form := url.Values{"result_id": {"2"}, "label": {"bio"}}
	newFeedback := func(values url.Values) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	assert.Equal(t, http.StatusBadRequest, g.do(newFeedback(form), "alice").Code)

	require.Equal(t, http.StatusOK, g.do(uploadRequest(t, "/api/scan", pngBytes(t), nil), "alice").Code)

	rec := g.do(newFeedback(form), "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, receipt := decode[feedback.Receipt](t, rec)
	assert.Contains(t, receipt.URL, "/uploads/labeled/bio/")

	rec = g.do(newFeedback(url.Values{"result_id": {"1"}, "label": {"glass"}}), "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = g.do(newFeedback(url.Values{"label": {"bio"}}), "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(uploadRequest(t, "/api/save", []byte("raw"), nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	_, saved := decode[SaveData](t, rec)
	assert.True(t, strings.HasPrefix(saved.URL, "/uploads/"))

	rec = g.do(httptest.NewRequest(http.MethodGet, saved.URL, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "raw", rec.Body.String())
}

func TestHealth(t *testing.T) {
	g := newGateway(t, nil)

	rec := g.do(httptest.NewRequest(http.MethodGet, "/api/health", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, health := decode[HealthData](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.NotNil(t, health.Capture)

	g.upstreamDown.Store(true)
	rec = g.do(httptest.NewRequest(http.MethodGet, "/api/health", nil), "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	_, health = decode[HealthData](t, rec)
	assert.Equal(t, "down", health.Recognizer)
}

func TestBearerAuth(t *testing.T) {
	tokens := domainauth.NewAuthToken("secret")
	g := newGateway(t, tokens)

	rec := g.do(httptest.NewRequest(http.MethodGet, "/api/scan/current", nil), "alice")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := tokens.GenerateToken("sorter-7")
	require.NoError(t, err)

	req := uploadRequest(t, "/api/scan", pngBytes(t), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, g.do(req, "").Code)

	req = httptest.NewRequest(http.MethodGet, "/api/scan/current", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	assert.Equal(t, http.StatusOK, g.do(req, "").Code)

	req = httptest.NewRequest(http.MethodGet, "/api/scan/current", nil)
	req.Header.Set("Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, g.do(req, "").Code)

	// blobs and health stay public
	assert.Equal(t, http.StatusOK, g.do(httptest.NewRequest(http.MethodGet, "/api/health", nil), "").Code)
}

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/preloader-go/internal/application/container"
	"github.com/AtRiskMedia/preloader-go/internal/application/services"
	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/preloader-go/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `{"items":[
	{"id":"hero","type":"image","url":"/img/hero.png"},
	{"id":"hero-again","type":"image","url":"/img/hero.png"},
	{"id":"config","type":"json","url":"/data/config.json"},
	{"id":"broken","type":"image","url":"/img/missing.png"}
]}`

type fixture struct {
	router    *gin.Engine
	container *container.Container
	mu        sync.Mutex
	hits      map[string]int
}

func (f *fixture) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func heroPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{R: 255, G: uint8(x * 6), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{hits: make(map[string]int)}
	hero := heroPNG(t)
	assetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.mu.Unlock()

		switch r.URL.Path {
		case "/data/manifest.json":
			w.Write([]byte(testManifest))
		case "/data/config.json":
			w.Write([]byte(`{"title":"demo","layers":[1,2]}`))
		case "/img/hero.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(hero)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(assetServer.Close)

	staticDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(staticDir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "data", "local.json"), []byte(`{"local":true}`), 0o644))

	cfg := &config.Config{
		Port:              "0",
		StaticDir:         staticDir,
		ManifestURL:       assetServer.URL + "/data/manifest.json",
		AssetBaseURL:      assetServer.URL + "/",
		ItemTimeout:       5 * time.Second,
		HTTPClientTimeout: 5 * time.Second,
		MaxBodyBytes:      1 << 20,
		CORSAllowOrigins:  []string{"http://localhost:5173"},
		ExpectedAssetIDs:  []string{"hero", "config", "test-image-remote"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c, err := container.NewContainer(ctx, cfg, logging.NewDiscardLogger())
	require.NoError(t, err)
	go c.ProgressBroadcaster.Run()
	t.Cleanup(c.ProgressBroadcaster.Shutdown)

	c.SessionService.Start(c.PreloadService.Init(ctx))

	f.container = c
	f.router = SetupRoutes(c)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestListAssets(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/assets", "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary services.SessionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.NotEmpty(t, summary.BatchID)
	assert.Len(t, summary.Assets, 4)
	assert.Equal(t, []string{"broken"}, summary.FailedIDs)
	assert.Equal(t, []string{"test-image-remote"}, summary.MissingIDs)
	assert.Empty(t, summary.ManifestError)

	assert.Equal(t, 1, f.hitCount("/img/hero.png"))
}

func TestGetAsset(t *testing.T) {
	f := newFixture(t)

	t.Run("json payload verbatim", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/assets/config", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"title":"demo","layers":[1,2]}`, w.Body.String())
	})

	t.Run("image metadata", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/assets/hero", "")
		require.Equal(t, http.StatusOK, w.Code)

		var desc services.AssetDescription
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &desc))
		assert.Equal(t, "image", desc.Kind)
		assert.Equal(t, "png", desc.Format)
		assert.Equal(t, 40, desc.Width)
		assert.Equal(t, 20, desc.Height)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/assets/nope", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("failed id", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/assets/broken", "")
		require.Equal(t, http.StatusFailedDependency, w.Code)
		assert.Contains(t, w.Body.String(), "404")
	})
}

func TestGetAssetPreview(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/assets/hero/preview?width=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/webp", w.Header().Get("Content-Type"))
	body := w.Body.Bytes()
	require.True(t, len(body) > 12)
	assert.Equal(t, "RIFF", string(body[:4]))

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/assets/hero/preview?width=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/assets/config/preview", "").Code)
	assert.Equal(t, http.StatusFailedDependency, f.do(t, http.MethodGet, "/api/v1/assets/broken/preview", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/assets/nope/preview", "").Code)
}

func TestRunPreloadReusesCachedImages(t *testing.T) {
	f := newFixture(t)
	before := f.container.SessionService.Batch().ID

	w := f.do(t, http.MethodPost, "/api/v1/preload", "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary services.SessionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.NotEqual(t, before, summary.BatchID)
	assert.Equal(t, summary.BatchID, f.container.SessionService.Batch().ID)

	assert.Equal(t, 1, f.hitCount("/img/hero.png"))
	assert.Equal(t, 2, f.hitCount("/data/config.json"))
	assert.Equal(t, 2, f.hitCount("/data/manifest.json"))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/preload/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, f.container.SessionService.Batch().ID, body["batchId"])
	assert.NotEmpty(t, body["markers"])

	cache, ok := body["cache"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), cache["entries"])
}

func TestStaticFallback(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/data/local.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"local":true}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/data/none.json", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/data/local.json", "").Code)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/data/local.json", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogLevels(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/sysop/logs/levels", "")
	require.Equal(t, http.StatusOK, w.Code)
	var levels map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &levels))
	assert.Contains(t, levels, "preload")

	w = f.do(t, http.MethodPost, "/api/sysop/logs/levels", `{"channel":"preload","level":"debug"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DEBUG", f.container.Logger.GetChannelLevels()["preload"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/sysop/logs/levels", `{"channel":"preload","level":"loud"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/sysop/logs/levels", `{"channel":"nope","level":"INFO"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/sysop/logs/levels", `{}`).Code)
}

func TestProgressWebsocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/preload/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return f.container.ProgressBroadcaster.ClientCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/v1/preload", "application/json", nil)
	require.NoError(t, err)
	var summary services.SessionSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Events from the startup batch may still be in flight; only count ours.
	items := 0
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var event assets.ProgressEvent
		require.NoError(t, conn.ReadJSON(&event))
		if event.BatchID != summary.BatchID {
			continue
		}
		if event.Type == assets.ProgressBatchDone {
			assert.Equal(t, 4, event.Total)
			assert.True(t, event.Failed)
			break
		}
		items++
	}
	assert.Equal(t, 4, items)
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venicegeo/bf-ndvi/catalog"
	"github.com/venicegeo/bf-ndvi/fetch"
	"github.com/venicegeo/bf-ndvi/util"
)

type memoryRuns struct {
	mu      sync.Mutex
	runs    []catalog.Run
	listErr error
}

func (m *memoryRuns) Insert(_ context.Context, run *catalog.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = int64(len(m.runs) + 1)
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memoryRuns) ListByScene(_ context.Context, sceneID string, limit int) ([]catalog.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []catalog.Run{}
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].SceneID == sceneID && (limit <= 0 || len(out) < limit) {
			out = append(out, m.runs[i])
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T, runs RunStore) (*mux.Router, *sceneServer) {
	server := newSceneServer(t)
	bands := standardBands()
	ctx := NewContext(testConfig(server.URL, t.TempDir()), runs)
	ctx.NewPipeline = func(config Config, logCtx util.LogContext) *Pipeline {
		p := New(config, logCtx)
		p.Open = bands.open
		return p
	}
	router := mux.NewRouter()
	RegisterRoutes(router, ctx)
	return router, server
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
	return recorder
}

func TestSummaryHandler(t *testing.T) {
	runs := &memoryRuns{}
	router, _ := newTestRouter(t, runs)

	response := get(router, "/ndvi/"+testSceneID)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	assert.Equal(t, "application/json", response.Header().Get("Content-Type"))

	var body struct {
		SceneID string `json:"sceneId"`
		Summary struct {
			Rows int     `json:"rows"`
			Mean float64 `json:"mean"`
		} `json:"summary"`
		Footprint struct {
			Type        string        `json:"type"`
			Coordinates [][][]float64 `json:"coordinates"`
		} `json:"footprint"`
	}
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &body))
	assert.Equal(t, testSceneID, body.SceneID)
	assert.Equal(t, 2, body.Summary.Rows)
	assert.InDelta(t, 0.25, body.Summary.Mean, 1e-9)
	assert.Equal(t, "Polygon", body.Footprint.Type)
	require.Len(t, body.Footprint.Coordinates, 1)
	assert.Len(t, body.Footprint.Coordinates[0], 5)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, testSceneID, runs.runs[0].SceneID)
	assert.NotNil(t, runs.runs[0].Footprint)
	assert.InDelta(t, 2e-5, runs.runs[0].NIRMult, 1e-15)
}

func TestSummaryHandler_InvalidSceneID(t *testing.T) {
	router, server := newTestRouter(t, nil)
	response := get(router, "/ndvi/LC08_NOT_A_SCENE")
	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.Contains(t, response.Body.String(), "Invalid scene ID")
	assert.Equal(t, int32(0), server.requests)
}

func TestSummaryHandler_UpstreamMissing(t *testing.T) {
	router, server := newTestRouter(t, nil)
	server.missing[testSceneID+"_MTL.json"] = true

	response := get(router, "/ndvi/"+testSceneID)
	assert.Equal(t, http.StatusBadGateway, response.Code)
	assert.Contains(t, response.Body.String(), "fetch stage failed")
}

func TestPreviewHandler(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	response := get(router, "/ndvi/"+testSceneID+".png")
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	assert.Equal(t, "image/png", response.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(response.Body.Bytes()))
	assert.NoError(t, err)

	response = get(router, "/ndvi/"+testSceneID+".png?raw=true")
	require.Equal(t, http.StatusOK, response.Code)
	img, err := png.Decode(bytes.NewReader(response.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	response = get(router, "/ndvi/"+testSceneID+".png?size=zero")
	assert.Equal(t, http.StatusBadRequest, response.Code)
}

func TestHistoryHandler(t *testing.T) {
	runs := &memoryRuns{}
	router, _ := newTestRouter(t, runs)

	require.Equal(t, http.StatusOK, get(router, "/ndvi/"+testSceneID).Code)
	require.Equal(t, http.StatusOK, get(router, "/ndvi/"+testSceneID+"?eager=true").Code)

	response := get(router, "/ndvi/"+testSceneID+"/history?limit=1")
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	var listed []catalog.Run
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, int64(2), listed[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(router, "/ndvi/"+testSceneID+"/history?limit=-1").Code)

	runs.listErr = errors.New("connection refused")
	assert.Equal(t, http.StatusInternalServerError, get(router, "/ndvi/"+testSceneID+"/history").Code)
}

func TestHistoryHandler_DisabledWithoutStore(t *testing.T) {
	_, err := NewHistoryHandler(NewContext(Config{}, nil))
	assert.Error(t, err)

	router, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusNotFound, get(router, "/ndvi/"+testSceneID+"/history").Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(stageErr(StageFetch, errors.New("x"))))
	assert.Equal(t, http.StatusBadGateway, statusFor(stageErr(StageMetadata, errors.New("x"))))
	assert.Equal(t, http.StatusInternalServerError, statusFor(stageErr(StageNDVI, errors.New("x"))))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}

// gatedFetcher holds every download until release is closed
type gatedFetcher struct {
	next    Fetcher
	once    *sync.Once
	started chan struct{}
	release chan struct{}
}

func (g gatedFetcher) FetchAll(ctx context.Context, resources []fetch.Resource) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.next.FetchAll(ctx, resources)
}

func TestSummaryHandler_ConcurrentRequestsShareRun(t *testing.T) {
	server := newSceneServer(t)
	bands := standardBands()
	runs := &memoryRuns{}
	cacheDir := t.TempDir()
	ctx := NewContext(testConfig(server.URL, cacheDir), runs)

	var built int32
	once := &sync.Once{}
	started, release := make(chan struct{}), make(chan struct{})
	ctx.NewPipeline = func(config Config, logCtx util.LogContext) *Pipeline {
		atomic.AddInt32(&built, 1)
		p := New(config, logCtx)
		p.Open = bands.open
		p.Fetcher = gatedFetcher{next: p.Fetcher, once: once, started: started, release: release}
		return p
	}
	router := mux.NewRouter()
	RegisterRoutes(router, ctx)

	clientCtx, hangUp := context.WithCancel(context.Background())
	first := httptest.NewRecorder()
	firstDone := make(chan struct{})
	go func() {
		router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ndvi/"+testSceneID, nil).WithContext(clientCtx))
		close(firstDone)
	}()
	<-started

	second := httptest.NewRecorder()
	secondDone := make(chan struct{})
	go func() {
		router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ndvi/"+testSceneID, nil))
		close(secondDone)
	}()
	time.Sleep(50 * time.Millisecond)

	// the first client leaves while the downloads are still pending
	hangUp()
	<-firstDone
	assert.Contains(t, first.Body.String(), context.Canceled.Error())

	close(release)
	<-secondDone
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&built))
	assert.Equal(t, int32(3), atomic.LoadInt32(&server.requests))
	assert.Len(t, runs.runs, 1)

	data, err := os.ReadFile(filepath.Join(cacheDir, testSceneID+"_B5.TIF"))
	require.NoError(t, err)
	assert.Equal(t, "II*\x00 not really a tiff", string(data))

	// later requests are served from the complete cache
	assert.Equal(t, http.StatusOK, get(router, "/ndvi/"+testSceneID+"?eager=true").Code)
	assert.Equal(t, int32(3), atomic.LoadInt32(&server.requests))
}

func TestPreviewHandler_RenderFailureIsPlainError(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	// a 2x2 grid sampled at most one cell across is too small to plot
	response := get(router, "/ndvi/"+testSceneID+".png?size=1")
	assert.Equal(t, http.StatusInternalServerError, response.Code)
	assert.Equal(t, "text/plain; charset=utf-8", response.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(response.Body.String(), "Error rendering NDVI"), response.Body.String())
}

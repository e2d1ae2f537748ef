package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/plot/vg"

	"github.com/venicegeo/bf-ndvi/catalog"
	"github.com/venicegeo/bf-ndvi/landsat"
	"github.com/venicegeo/bf-ndvi/ndvi"
	"github.com/venicegeo/bf-ndvi/util"
)

const defaultPreviewCells = 512

// RunStore records and lists computed runs
type RunStore interface {
	Insert(ctx context.Context, run *catalog.Run) error
	ListByScene(ctx context.Context, sceneID string, limit int) ([]catalog.Run, error)
}

// Context is the context for an NDVI request
type Context struct {
	// Base is copied for every request with the scene ID filled in
	Base Config
	// Runs is optional; without it runs are not recorded
	Runs RunStore
	// NewPipeline defaults to New
	NewPipeline func(Config, util.LogContext) *Pipeline

	group       singleflight.Group
	sessionOnce sync.Once
	sessionID   string
}

// NewContext creates a handler context around a base configuration
func NewContext(base Config, runs RunStore) *Context {
	return &Context{Base: base, Runs: runs, NewPipeline: New}
}

// AppName returns the application name
func (c *Context) AppName() string {
	return "bf-ndvi"
}

// SessionID returns a Session ID, creating one if needed
func (c *Context) SessionID() string {
	c.sessionOnce.Do(func() {
		c.sessionID, _ = util.PsuUUID()
	})
	return c.sessionID
}

// LogRootDir returns an empty string
func (c *Context) LogRootDir() string {
	return ""
}

// run computes a scene once per distinct request even when several
// requests for it arrive together. The shared run outlives any one client;
// a client that goes away only stops waiting for it.
func (c *Context) run(r *http.Request, sceneID string) (*Result, error) {
	config := c.Base
	config.SceneID = sceneID
	config.BaseURL = ""
	config.Output = ""
	config.GeoTIFF = ""
	if v, err := strconv.ParseBool(r.FormValue("eager")); err == nil {
		config.Eager = v
	}
	if v, err := strconv.ParseBool(r.FormValue("sunCorrection")); err == nil {
		config.SunElevationCorrection = v
	}

	key := fmt.Sprintf("%s/%t/%t", sceneID, config.Eager, config.SunElevationCorrection)
	runCtx := context.WithoutCancel(r.Context())
	done := c.group.DoChan(key, func() (interface{}, error) {
		newPipeline := c.NewPipeline
		if newPipeline == nil {
			newPipeline = New
		}
		result, err := newPipeline(config, c).Run(runCtx)
		if err != nil {
			return nil, err
		}
		c.record(runCtx, result)
		return result, nil
	})
	select {
	case res := <-done:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	case <-r.Context().Done():
		return nil, r.Context().Err()
	}
}

func (c *Context) record(ctx context.Context, result *Result) {
	if c.Runs == nil {
		return
	}
	run := &catalog.Run{
		SceneID:   result.SceneID,
		RedBand:   result.RedBand,
		NIRBand:   result.NIRBand,
		RedMult:   result.Red.Mult,
		RedAdd:    result.Red.Add,
		NIRMult:   result.NIR.Mult,
		NIRAdd:    result.NIR.Add,
		Summary:   result.Summary,
		Footprint: result.Footprint,
	}
	if err := c.Runs.Insert(ctx, run); err != nil {
		util.LogAlert(c, fmt.Sprintf("Could not record run of %s: %v", result.SceneID, err))
	}
}

// statusFor maps a run failure to an HTTP status
func statusFor(err error) int {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case StageFetch, StageMetadata:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func sceneIDFrom(h *Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	sceneID, ok := mux.Vars(r)["id"]
	if !ok {
		message := "No scene ID found in URL"
		util.LogAlert(h, message)
		util.HTTPError(r, w, h, message, http.StatusNotFound)
		return "", false
	}
	if !landsat.IsValidSceneID(sceneID) {
		message := fmt.Sprintf("Invalid scene ID: %s", sceneID)
		util.LogInfo(h, message)
		util.HTTPError(r, w, h, message, http.StatusBadRequest)
		return "", false
	}
	return sceneID, true
}

// SummaryHandler is a handler for /ndvi/{id}
// @Title ndviSummaryHandler
// @Description computes NDVI for a scene and returns its summary
// @Accept  plain
// @Param   id              path    string  true         "The ID of the requested scene"
// @Param   eager           query   bool    false        "True: compute each stage immediately"
// @Param   sunCorrection   query   bool    false        "True: divide reflectance by sin(sun elevation)"
// @Success 200 {object}  pipeline.Result
// @Failure 400 {object}  string
// @Failure 502 {object}  string
// @Router /ndvi/{id} [get]
type SummaryHandler struct {
	Context *Context
}

// NewSummaryHandler creates a new handler sharing ctx
func NewSummaryHandler(ctx *Context) *SummaryHandler {
	return &SummaryHandler{Context: ctx}
}

func (h SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sceneID, ok := sceneIDFrom(h.Context, w, r)
	if !ok {
		return
	}

	result, err := h.Context.run(r, sceneID)
	if err != nil {
		message := fmt.Sprintf("Error computing NDVI for %s: %v", sceneID, err)
		util.LogSimpleErr(h.Context, message, err)
		util.HTTPError(r, w, h.Context, message, statusFor(err))
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		message := fmt.Sprintf("Error encoding result: %v", err)
		util.LogSimpleErr(h.Context, message, err)
		util.HTTPError(r, w, h.Context, message, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// PreviewHandler is a handler for /ndvi/{id}.png
// @Title ndviPreviewHandler
// @Description renders the NDVI of a scene as a PNG
// @Accept  plain
// @Param   id      path    string  true     "The ID of the requested scene"
// @Param   size    query   int     false    "Maximum sampled cells along the longer side"
// @Param   raw     query   bool    false    "True: one pixel per sampled cell, no axes or title"
// @Success 200 {object}  image/png
// @Failure 400 {object}  string
// @Router /ndvi/{id}.png [get]
type PreviewHandler struct {
	Context *Context
}

// NewPreviewHandler creates a new handler sharing ctx
func NewPreviewHandler(ctx *Context) *PreviewHandler {
	return &PreviewHandler{Context: ctx}
}

func (h PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sceneID, ok := sceneIDFrom(h.Context, w, r)
	if !ok {
		return
	}
	size := defaultPreviewCells
	if r.FormValue("size") != "" {
		var err error
		if size, err = strconv.Atoi(r.FormValue("size")); err != nil || size <= 0 {
			message := fmt.Sprintf("Size value of %v is invalid.", r.FormValue("size"))
			util.LogInfo(h.Context, message)
			util.HTTPError(r, w, h.Context, message, http.StatusBadRequest)
			return
		}
	}
	raw, _ := strconv.ParseBool(r.FormValue("raw"))

	result, err := h.Context.run(r, sceneID)
	if err != nil {
		message := fmt.Sprintf("Error computing NDVI for %s: %v", sceneID, err)
		util.LogSimpleErr(h.Context, message, err)
		util.HTTPError(r, w, h.Context, message, statusFor(err))
		return
	}

	var body bytes.Buffer
	scale, err := ndvi.DefaultColorScale()
	if err == nil {
		rows, cols := result.NDVI.Dims()
		stride := ndvi.StrideFor(rows, cols, size)
		if raw {
			err = png.Encode(&body, scale.Image(result.NDVI, stride))
		} else {
			err = scale.WritePlot(&body, result.NDVI, "NDVI "+sceneID, stride, "png", 6*vg.Inch, 6*vg.Inch)
		}
	}
	if err != nil {
		message := fmt.Sprintf("Error rendering NDVI for %s: %v", sceneID, err)
		util.LogSimpleErr(h.Context, message, err)
		util.HTTPError(r, w, h.Context, message, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(body.Bytes())
}

// HistoryHandler is a handler for /ndvi/{id}/history
// @Title ndviHistoryHandler
// @Description lists recorded NDVI runs of a scene, newest first
// @Accept  plain
// @Param   id      path    string  true     "The ID of the requested scene"
// @Param   limit   query   int     false    "Maximum number of runs returned"
// @Success 200 {object}  []catalog.Run
// @Failure 400 {object}  string
// @Router /ndvi/{id}/history [get]
type HistoryHandler struct {
	Context *Context
}

// NewHistoryHandler creates a new handler sharing ctx. It fails without a run store.
func NewHistoryHandler(ctx *Context) (*HistoryHandler, error) {
	if ctx.Runs == nil {
		return nil, errors.New("no run store configured")
	}
	return &HistoryHandler{Context: ctx}, nil
}

func (h HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sceneID, ok := sceneIDFrom(h.Context, w, r)
	if !ok {
		return
	}
	limit := 0
	if r.FormValue("limit") != "" {
		var err error
		if limit, err = strconv.Atoi(r.FormValue("limit")); err != nil || limit < 0 {
			message := fmt.Sprintf("Limit value of %v is invalid.", r.FormValue("limit"))
			util.LogInfo(h.Context, message)
			util.HTTPError(r, w, h.Context, message, http.StatusBadRequest)
			return
		}
	}

	runs, err := h.Context.Runs.ListByScene(r.Context(), sceneID, limit)
	if err != nil {
		message := fmt.Sprintf("Server error listing runs: %v", err)
		util.LogSimpleErr(h.Context, message, err)
		util.HTTPError(r, w, h.Context, message, http.StatusInternalServerError)
		return
	}
	body, err := json.Marshal(runs)
	if err != nil {
		message := fmt.Sprintf("Error encoding runs: %v", err)
		util.LogSimpleErr(h.Context, message, err)
		util.HTTPError(r, w, h.Context, message, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// RegisterRoutes adds the NDVI endpoints to router. The history endpoint is
// only added when ctx has a run store.
func RegisterRoutes(router *mux.Router, ctx *Context) {
	router.Handle("/ndvi/{id:[A-Za-z0-9_]+}.png", NewPreviewHandler(ctx)).Methods(http.MethodGet)
	router.Handle("/ndvi/{id:[A-Za-z0-9_]+}", NewSummaryHandler(ctx)).Methods(http.MethodGet)
	if historyHandler, err := NewHistoryHandler(ctx); err == nil {
		router.Handle("/ndvi/{id:[A-Za-z0-9_]+}/history", historyHandler).Methods(http.MethodGet)
	} else {
		util.LogInfo(ctx, "Run history endpoint disabled: "+err.Error())
	}
}

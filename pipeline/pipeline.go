// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pipeline runs fetch, metadata, reflectance and NDVI for one scene
// and serves the results over HTTP.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/venicegeo/geojson-go/geojson"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"

	"github.com/venicegeo/bf-ndvi/fetch"
	"github.com/venicegeo/bf-ndvi/landsat"
	"github.com/venicegeo/bf-ndvi/ndvi"
	"github.com/venicegeo/bf-ndvi/raster"
	"github.com/venicegeo/bf-ndvi/util"
)

// Stage names used in wrapped errors
const (
	StageFetch       = "fetch"
	StageMetadata    = "metadata"
	StageOpen        = "open"
	StageReflectance = "reflectance"
	StageNDVI        = "ndvi"
	StageRender      = "render"
)

// plots never sample more than this many cells along either side
const maxPlotCells = 1024

// StageError reports which stage of a run failed
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Fetcher downloads a list of resources into the cache
type Fetcher interface {
	FetchAll(ctx context.Context, resources []fetch.Resource) error
}

// OpenFunc opens a cached band file. The closer is released after the NDVI
// grid has been computed.
type OpenFunc func(path string) (*raster.Band, io.Closer, error)

// OpenGeoTIFF opens band files through GDAL
func OpenGeoTIFF(path string) (*raster.Band, io.Closer, error) {
	band, ds, err := raster.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return band, ds, nil
}

// Result is the outcome of one run
type Result struct {
	SceneID         string           `json:"sceneId"`
	ProcessingLevel string           `json:"processingLevel,omitempty"`
	RedBand         int              `json:"redBand"`
	NIRBand         int              `json:"nirBand"`
	Red             ndvi.Calibration `json:"red"`
	NIR             ndvi.Calibration `json:"nir"`
	SunElevation    *float64         `json:"sunElevation,omitempty"`
	Footprint       *geojson.Polygon `json:"footprint,omitempty"`
	Summary         raster.Summary   `json:"summary"`
	GeoTransform    [6]float64       `json:"geoTransform"`
	Projection      string           `json:"projection"`
	ElapsedSeconds  float64          `json:"elapsedSeconds"`
	NDVI            *mat.Dense       `json:"-"`
}

// Pipeline composes the stages of a run
type Pipeline struct {
	Config  Config
	Fetcher Fetcher
	Open    OpenFunc
	Context util.LogContext
}

// New creates a Pipeline that downloads with a fetch.Fetcher and reads
// bands with GDAL
func New(config Config, ctx util.LogContext) *Pipeline {
	if ctx == nil {
		ctx = &util.BasicLogContext{}
	}
	return &Pipeline{
		Config:  config,
		Fetcher: fetch.NewFetcher(ctx),
		Open:    OpenGeoTIFF,
		Context: ctx,
	}
}

// Run executes every stage once. Cached files from earlier runs are reused.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	cfg := p.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	files, err := cfg.SceneFiles()
	if err != nil {
		return nil, stageErr(StageFetch, err)
	}
	redURL, err := files.BandURL(cfg.RedBand)
	if err != nil {
		return nil, stageErr(StageFetch, err)
	}
	nirURL, err := files.BandURL(cfg.NIRBand)
	if err != nil {
		return nil, stageErr(StageFetch, err)
	}
	resources := []fetch.Resource{}
	for _, rawURL := range []string{files.MetadataURL(), redURL, nirURL} {
		name, err := landsat.LocalName(rawURL)
		if err != nil {
			return nil, stageErr(StageFetch, err)
		}
		resources = append(resources, fetch.Resource{URL: rawURL, Path: filepath.Join(cfg.CacheDir, name)})
	}
	mtlPath, redPath, nirPath := resources[0].Path, resources[1].Path, resources[2].Path

	util.LogInfo(p.Context, fmt.Sprintf("Fetching scene %s into %s", cfg.SceneID, cfg.CacheDir))
	if err = p.Fetcher.FetchAll(ctx, resources); err != nil {
		return nil, stageErr(StageFetch, err)
	}

	result := &Result{
		SceneID:         cfg.SceneID,
		ProcessingLevel: landsat.ProcessingLevel(cfg.SceneID),
		RedBand:         cfg.RedBand,
		NIRBand:         cfg.NIRBand,
	}
	mtl, err := landsat.LoadMTL(mtlPath)
	if err != nil {
		return nil, stageErr(StageMetadata, err)
	}
	util.LogInfo(p.Context, fmt.Sprintf("Read %s metadata for scene %s", mtl.Root(), cfg.SceneID))
	if result.Red.Mult, result.Red.Add, err = mtl.ReflectanceScaling(cfg.RedBand); err != nil {
		return nil, stageErr(StageMetadata, err)
	}
	if result.NIR.Mult, result.NIR.Add, err = mtl.ReflectanceScaling(cfg.NIRBand); err != nil {
		return nil, stageErr(StageMetadata, err)
	}
	if cfg.SunElevationCorrection {
		elevation, err := mtl.SunElevation()
		if err != nil {
			return nil, stageErr(StageMetadata, err)
		}
		result.SunElevation = &elevation
	}
	if corners, err := mtl.Corners(); err == nil {
		result.Footprint = corners.Polygon()
	} else {
		util.LogAlert(p.Context, fmt.Sprintf("No footprint for scene %s: %v", cfg.SceneID, err))
	}

	red, redCloser, err := p.Open(redPath)
	if err != nil {
		return nil, stageErr(StageOpen, err)
	}
	defer redCloser.Close()
	nir, nirCloser, err := p.Open(nirPath)
	if err != nil {
		return nil, stageErr(StageOpen, err)
	}
	defer nirCloser.Close()

	ev := cfg.Evaluator()
	redRefl, err := p.reflectance(ctx, ev, red, result.Red, result.SunElevation)
	if err != nil {
		return nil, stageErr(StageReflectance, err)
	}
	nirRefl, err := p.reflectance(ctx, ev, nir, result.NIR, result.SunElevation)
	if err != nil {
		return nil, stageErr(StageReflectance, err)
	}

	index, err := ndvi.NDVI(ctx, ev, nirRefl, redRefl)
	if err != nil {
		return nil, stageErr(StageNDVI, err)
	}
	grid, err := ev.Compute(ctx, index.Array)
	if err != nil {
		return nil, stageErr(StageNDVI, err)
	}
	result.NDVI = grid
	result.GeoTransform = index.GeoTransform
	result.Projection = index.Projection
	result.Summary = raster.Summarize(grid)

	if err = p.writeOutputs(result); err != nil {
		return nil, stageErr(StageRender, err)
	}

	elapsed := time.Since(start)
	result.ElapsedSeconds = elapsed.Seconds()
	util.LogAudit(p.Context, util.LogAuditInput{Actor: "bf-ndvi", Action: "computed NDVI", Actee: cfg.SceneID,
		Message:  fmt.Sprintf("%dx%d grid, mean %v, in %v", result.Summary.Rows, result.Summary.Cols, result.Summary.Mean, elapsed),
		Severity: util.INFO})
	return result, nil
}

func (p *Pipeline) reflectance(ctx context.Context, ev raster.Evaluator, band *raster.Band, cal ndvi.Calibration, sunElevation *float64) (*raster.Band, error) {
	out, err := ndvi.ToReflectance(ctx, ev, band, cal)
	if err != nil || sunElevation == nil {
		return out, err
	}
	return ndvi.CorrectSunElevation(ctx, ev, out, *sunElevation)
}

func (p *Pipeline) writeOutputs(result *Result) error {
	if p.Config.GeoTIFF != "" {
		if err := raster.WriteGeoTIFF(p.Config.GeoTIFF, result.NDVI, result.GeoTransform, result.Projection); err != nil {
			return err
		}
		util.LogInfo(p.Context, "Wrote NDVI GeoTIFF to "+p.Config.GeoTIFF)
	}
	if p.Config.Output == "" {
		return nil
	}
	scale, err := ndvi.DefaultColorScale()
	if err != nil {
		return err
	}
	rows, cols := result.NDVI.Dims()
	stride := ndvi.StrideFor(rows, cols, maxPlotCells)
	if err = scale.SavePlot(result.NDVI, "NDVI "+result.SceneID, stride, p.Config.Output, 8*vg.Inch, 8*vg.Inch); err != nil {
		return err
	}
	util.LogInfo(p.Context, "Rendered NDVI to "+p.Config.Output)
	return nil
}

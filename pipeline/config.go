package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/venicegeo/bf-ndvi/landsat"
	"github.com/venicegeo/bf-ndvi/raster"
	"github.com/venicegeo/bf-ndvi/util"
)

// Config describes a single NDVI run
type Config struct {
	SceneID string `yaml:"scene_id"`
	// BaseURL is the scene folder; when empty it is derived from LandsatHost and SceneID
	BaseURL     string `yaml:"base_url"`
	LandsatHost string `yaml:"landsat_host"`
	CacheDir    string `yaml:"cache_dir"`

	RedBand int `yaml:"red_band"`
	NIRBand int `yaml:"nir_band"`

	ChunkRows int  `yaml:"chunk_rows"`
	Workers   int  `yaml:"workers"`
	Eager     bool `yaml:"eager"`

	SunElevationCorrection bool `yaml:"sun_elevation_correction"`

	// Output is an optional rendered image path (.png, .svg, .pdf ...)
	Output string `yaml:"output"`
	// GeoTIFF is an optional path the NDVI grid is written to
	GeoTIFF string `yaml:"geotiff"`
}

// DefaultConfig returns a Config populated from the environment
func DefaultConfig() Config {
	return Config{
		LandsatHost: util.GetLandsatHost(),
		CacheDir:    util.GetCacheDir(),
		RedBand:     landsat.Red,
		NIRBand:     landsat.NIR,
		ChunkRows:   util.GetChunkRows(),
		Workers:     util.GetWorkers(),
	}
}

// LoadConfig reads and validates a YAML run configuration
func LoadConfig(path string) (Config, error) {
	config, err := ReadConfig(path)
	if err != nil {
		return config, err
	}
	return config, config.Validate()
}

// ReadConfig decodes a YAML run configuration on top of DefaultConfig
// without validating it
func ReadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err = decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("invalid run configuration %s: %w", path, err)
	}
	return config, nil
}

// Validate checks that the configuration can be run
func (c Config) Validate() error {
	problems := []string{}
	if c.SceneID == "" {
		problems = append(problems, "scene_id is required")
	} else if c.BaseURL == "" && !landsat.IsValidSceneID(c.SceneID) {
		problems = append(problems, fmt.Sprintf("scene_id %q is not a Landsat 8 scene ID and no base_url is given", c.SceneID))
	}
	if _, ok := landsat.BandNames[c.RedBand]; !ok {
		problems = append(problems, fmt.Sprintf("red_band %d is not a Landsat 8 band", c.RedBand))
	}
	if _, ok := landsat.BandNames[c.NIRBand]; !ok {
		problems = append(problems, fmt.Sprintf("nir_band %d is not a Landsat 8 band", c.NIRBand))
	}
	if c.RedBand == c.NIRBand {
		problems = append(problems, "red_band and nir_band must differ")
	}
	if c.ChunkRows < 0 || c.Workers < 0 {
		problems = append(problems, "chunk_rows and workers must not be negative")
	}
	if len(problems) > 0 {
		return errors.New("invalid run configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// Evaluator returns the array backend the run computes with
func (c Config) Evaluator() raster.Evaluator {
	if c.Eager {
		return raster.Eager{}
	}
	return raster.Chunked{ChunkRows: c.ChunkRows, Workers: c.Workers}
}

// SceneFiles locates the bands and metadata of the configured scene
func (c Config) SceneFiles() (*landsat.SceneFiles, error) {
	folder := c.BaseURL
	if folder == "" {
		var err error
		if folder, err = landsat.SceneFolderURL(c.LandsatHost, c.SceneID); err != nil {
			return nil, err
		}
	}
	return landsat.NewSceneFiles(folder, c.SceneID)
}

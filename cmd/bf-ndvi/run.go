package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/venicegeo/bf-ndvi/catalog"
	"github.com/venicegeo/bf-ndvi/fetch"
	"github.com/venicegeo/bf-ndvi/landsat"
	"github.com/venicegeo/bf-ndvi/pipeline"
	"github.com/venicegeo/bf-ndvi/util"
)

var newPipelineFunc = pipeline.New

// runConfig starts from the --config file (or the environment) and applies
// every flag that was given on the command line
func runConfig(c *cli.Context) (pipeline.Config, error) {
	var config pipeline.Config
	if path := c.String("config"); path != "" {
		var err error
		if config, err = pipeline.ReadConfig(path); err != nil {
			return config, err
		}
	} else {
		config = pipeline.DefaultConfig()
	}

	if c.IsSet("scene") {
		config.SceneID = c.String("scene")
	} else if c.Args().First() != "" {
		config.SceneID = c.Args().First()
	}
	if c.IsSet("base-url") {
		config.BaseURL = c.String("base-url")
	}
	if c.IsSet("cache-dir") {
		config.CacheDir = c.String("cache-dir")
	}
	if c.IsSet("red-band") {
		config.RedBand = c.Int("red-band")
	}
	if c.IsSet("nir-band") {
		config.NIRBand = c.Int("nir-band")
	}
	if c.IsSet("chunk-rows") {
		config.ChunkRows = c.Int("chunk-rows")
	}
	if c.IsSet("workers") {
		config.Workers = c.Int("workers")
	}
	if c.IsSet("eager") {
		config.Eager = c.Bool("eager")
	}
	if c.IsSet("sun-correction") {
		config.SunElevationCorrection = c.Bool("sun-correction")
	}
	if c.IsSet("output") {
		config.Output = c.String("output")
	}
	if c.IsSet("geotiff") {
		config.GeoTIFF = c.String("geotiff")
	}
	return config, config.Validate()
}

func runAction(c *cli.Context) error {
	logContext := &(util.BasicLogContext{})

	config, err := runConfig(c)
	if err != nil {
		return cli.NewExitError(util.LogSimpleErr(logContext, "Could not configure run:", err).Error(), 2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := newPipelineFunc(config, logContext).Run(ctx)
	if err != nil {
		return cli.NewExitError(util.LogSimpleErr(logContext, "NDVI run failed:", err).Error(), 1)
	}

	if c.Bool("record") {
		if err = recordRun(ctx, logContext, result); err != nil {
			return cli.NewExitError(util.LogSimpleErr(logContext, "Could not record run:", err).Error(), 1)
		}
	}

	encoder := json.NewEncoder(c.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func recordRun(ctx context.Context, logContext util.LogContext, result *pipeline.Result) error {
	database, err := getDbConnectionFunc(logContext)
	if err != nil {
		return err
	}
	defer database.Close()

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
	if err = catalog.NewStore(database).Insert(ctx, run); err != nil {
		return err
	}
	util.LogInfo(logContext, fmt.Sprintf("Recorded run %d of %s", run.ID, run.SceneID))
	return nil
}

func fetchAction(c *cli.Context) error {
	logContext := &(util.BasicLogContext{})

	rawURL := c.Args().Get(0)
	if rawURL == "" {
		return cli.NewExitError("fetch needs a URL", 2)
	}
	localPath := c.Args().Get(1)
	if localPath == "" {
		name, err := landsat.LocalName(rawURL)
		if err != nil {
			return cli.NewExitError(err.Error(), 2)
		}
		cacheDir := c.String("cache-dir")
		if cacheDir == "" {
			cacheDir = util.GetCacheDir()
		}
		localPath = filepath.Join(cacheDir, name)
	}

	downloaded, err := fetch.NewFetcher(logContext).Fetch(context.Background(), rawURL, localPath)
	if err != nil {
		return cli.NewExitError(util.LogSimpleErr(logContext, "Fetch failed:", err).Error(), 1)
	}
	if downloaded {
		fmt.Fprintln(c.App.Writer, "downloaded "+localPath)
	} else {
		fmt.Fprintln(c.App.Writer, "cached "+localPath)
	}
	return nil
}

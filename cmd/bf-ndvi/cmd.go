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

package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

var version = "0.1.0"

var runFlags = []cli.Flag{
	cli.StringFlag{Name: "config, c", Usage: "YAML run configuration file"},
	cli.StringFlag{Name: "scene, s", Usage: "Landsat 8 scene or product ID"},
	cli.StringFlag{Name: "base-url", Usage: "Scene folder URL (http, https, s3 or file); derived from LANDSAT_HOST when empty"},
	cli.StringFlag{Name: "cache-dir", Usage: "Directory downloaded files are cached in"},
	cli.IntFlag{Name: "red-band", Usage: "Red band number", Value: 4},
	cli.IntFlag{Name: "nir-band", Usage: "Near-infrared band number", Value: 5},
	cli.IntFlag{Name: "chunk-rows", Usage: "Raster rows evaluated per chunk"},
	cli.IntFlag{Name: "workers", Usage: "Chunks evaluated at once"},
	cli.BoolFlag{Name: "eager", Usage: "Compute each stage immediately instead of in row chunks"},
	cli.BoolFlag{Name: "sun-correction", Usage: "Divide reflectance by sin(sun elevation)"},
	cli.StringFlag{Name: "output, o", Usage: "Render the NDVI to this image file (.png, .svg, .pdf)"},
	cli.StringFlag{Name: "geotiff", Usage: "Write the NDVI grid to this GeoTIFF file"},
	cli.BoolFlag{Name: "record", Usage: "Record the run summary in the database"},
}

var commands = cli.Commands{
	cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Compute NDVI for a Landsat 8 scene",
		ArgsUsage: "[scene ID]",
		Flags:     runFlags,
		Action:    runAction,
	},
	cli.Command{
		Name:      "fetch",
		Aliases:   []string{"f"},
		Usage:     "Download a single file into the cache unless it is already there",
		ArgsUsage: "<url> [local path]",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "cache-dir", Usage: "Directory the file is cached in when no local path is given"},
		},
		Action: fetchAction,
	},
	cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Launch the bf-ndvi webserver",
		Action:  serveAction,
	},
	cli.Command{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "Print the version number of the NDVI CLI",
		Action:  versionAction,
	},
	cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Update database schema",
		Action:  migrateDatabaseAction,
	},
}

func createCliApp() (app *cli.App) {
	app = cli.NewApp()
	app.Name = "bf-ndvi"
	app.Usage = "Compute NDVI from Landsat 8 scenes"
	app.Version = version
	app.Commands = commands
	return
}

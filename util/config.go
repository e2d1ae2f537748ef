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

package util

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Environment variables
const (
	LANDSAT_HOST      = "LANDSAT_HOST"
	NDVI_CACHE_DIR    = "NDVI_CACHE_DIR"
	NDVI_CHUNK_ROWS   = "NDVI_CHUNK_ROWS"
	NDVI_WORKERS      = "NDVI_WORKERS"
	NDVI_LOG_LEVEL    = "NDVI_LOG_LEVEL"
	NDVI_HTTP_TIMEOUT = "NDVI_HTTP_TIMEOUT"
	AWS_REGION        = "AWS_REGION"
)

const (
	defaultLandsatHost = "https://landsat-pds.s3.amazonaws.com"
	defaultCacheDir    = "."
	defaultChunkRows   = 512
	defaultAWSRegion   = "us-west-2"
	defaultHTTPTimeout = 5 * time.Minute
)

// GetLandsatHost returns the LANDSAT_HOST environment variable, falling back
// to the public Landsat 8 bucket
func GetLandsatHost() string {
	landsatHost, ok := os.LookupEnv(LANDSAT_HOST)
	if !ok || landsatHost == "" {
		LogInfo(&BasicLogContext{}, "Did not get Landsat Host URL from the environment. Using default: "+defaultLandsatHost)
		return defaultLandsatHost
	}
	return landsatHost
}

// GetCacheDir returns the directory downloaded scene files are cached in
func GetCacheDir() string {
	if dir, ok := os.LookupEnv(NDVI_CACHE_DIR); ok && dir != "" {
		return dir
	}
	return defaultCacheDir
}

// GetChunkRows returns the number of raster rows evaluated per chunk
func GetChunkRows() int {
	return positiveIntFromEnv(NDVI_CHUNK_ROWS, defaultChunkRows)
}

// GetWorkers returns how many chunks may be evaluated at once
func GetWorkers() int {
	return positiveIntFromEnv(NDVI_WORKERS, runtime.NumCPU())
}

// GetAWSRegion returns the region used for s3:// downloads
func GetAWSRegion() string {
	if region, ok := os.LookupEnv(AWS_REGION); ok && region != "" {
		return region
	}
	return defaultAWSRegion
}

// GetHTTPTimeout returns the overall timeout for a single HTTP download
func GetHTTPTimeout() time.Duration {
	raw := os.Getenv(NDVI_HTTP_TIMEOUT)
	if raw == "" {
		return defaultHTTPTimeout
	}
	timeout, err := time.ParseDuration(raw)
	if err != nil || timeout <= 0 {
		LogAlert(&BasicLogContext{}, fmt.Sprintf("Invalid %s value %q. Using default: %v", NDVI_HTTP_TIMEOUT, raw, defaultHTTPTimeout))
		return defaultHTTPTimeout
	}
	return timeout
}

// GetPortStr returns the listen address built from the PORT environment variable
func GetPortStr() string {
	if port, ok := os.LookupEnv("PORT"); ok {
		return ":" + port
	}
	return ":8080"
}

func positiveIntFromEnv(name string, fallback int) int {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		LogAlert(&BasicLogContext{}, fmt.Sprintf("Invalid %s value %q. Using default: %d", name, raw, fallback))
		return fallback
	}
	return value
}

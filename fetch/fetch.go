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

// Package fetch downloads scene files into a local cache. A file that already
// exists locally is never downloaded again, whatever its contents.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/venicegeo/bf-ndvi/util"
)

// inflight joins concurrent downloads of one cache path, across Fetchers
var inflight singleflight.Group

// Resource pairs a remote URL with the local path it is cached at
type Resource struct {
	URL  string
	Path string
}

type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, optFns ...func(*manager.Downloader)) (int64, error)
}

func newManagerDownloader(cfg aws.Config) s3Downloader {
	return manager.NewDownloader(s3.NewFromConfig(cfg))
}

// Fetcher downloads http(s), s3 and file URLs to local paths
type Fetcher struct {
	Client  *http.Client
	Context util.LogContext

	mu            sync.Mutex
	newDownloader func(aws.Config) s3Downloader
	downloader    s3Downloader
}

// NewFetcher creates a Fetcher using the shared HTTP client
func NewFetcher(ctx util.LogContext) *Fetcher {
	if ctx == nil {
		ctx = &util.BasicLogContext{}
	}
	return &Fetcher{
		Client:        util.HTTPClient(),
		Context:       ctx,
		newDownloader: newManagerDownloader,
	}
}

// Fetch downloads rawURL to localPath unless localPath already exists. It
// reports whether this call performed the download. No retries are attempted
// and an existing file is trusted as-is, even if an earlier download was cut
// short. Calls for a path that is already being downloaded wait for that
// download instead of starting another.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, localPath string) (bool, error) {
	key := localPath
	if abs, err := filepath.Abs(localPath); err == nil {
		key = abs
	}
	leader := false
	downloaded, err, _ := inflight.Do(key, func() (interface{}, error) {
		leader = true
		return f.fetch(ctx, rawURL, localPath)
	})
	if err != nil {
		return false, err
	}
	return leader && downloaded.(bool), nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, localPath string) (bool, error) {
	info, err := os.Stat(localPath)
	switch {
	case err == nil:
		if info.Size() == 0 {
			util.LogAlert(f.Context, fmt.Sprintf("Cached file %s is empty; reusing it anyway", localPath))
		}
		return false, nil
	case !errors.Is(err, os.ErrNotExist):
		return false, err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if dir := filepath.Dir(localPath); dir != "" {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create cache directory: %w", err)
		}
	}

	util.LogAudit(f.Context, util.LogAuditInput{Actor: "bf-ndvi", Action: "GET", Actee: rawURL, Message: "Downloading to " + localPath, Severity: util.INFO})

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		err = f.fetchHTTP(ctx, u, localPath)
	case "s3":
		err = f.fetchS3(ctx, u, localPath)
	case "file", "":
		err = copyLocal(u.Path, localPath)
	default:
		err = fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FetchAll fetches each resource in order, stopping at the first failure
func (f *Fetcher) FetchAll(ctx context.Context, resources []Resource) error {
	for _, resource := range resources {
		if _, err := f.Fetch(ctx, resource.URL, resource.Path); err != nil {
			return fmt.Errorf("fetching %s: %w", resource.URL, err)
		}
	}
	return nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return util.HTTPErr{Status: resp.StatusCode, Message: fmt.Sprintf("GET %s: %s %s", u, resp.Status, strings.TrimSpace(string(preview)))}
	}

	return f.writeFile(localPath, func(out *os.File) error {
		_, err := io.Copy(out, resp.Body)
		return err
	})
}

func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL, localPath string) error {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("s3 URL %s must name a bucket and a key", u)
	}
	downloader := f.s3Downloader()

	return f.writeFile(localPath, func(out *os.File) error {
		_, err := downloader.Download(ctx, out, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

func (f *Fetcher) s3Downloader() s3Downloader {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloader == nil {
		factory := f.newDownloader
		if factory == nil {
			factory = newManagerDownloader
		}
		f.downloader = factory(awsConfig())
	}
	return f.downloader
}

func awsConfig() aws.Config {
	cfg := aws.Config{Region: util.GetAWSRegion()}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(key, os.Getenv("AWS_SECRET_ACCESS_KEY"), os.Getenv("AWS_SESSION_TOKEN"))
	} else {
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	return cfg
}

// writeFile writes straight to the destination. A failed write leaves
// whatever was written in place; it will be reused by the next Fetch.
func (f *Fetcher) writeFile(localPath string, write func(*os.File) error) error {
	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if err = write(out); err != nil {
		out.Close()
		util.LogAlert(f.Context, fmt.Sprintf("Download to %s failed part way; the partial file will be treated as cached", localPath))
		return err
	}
	return out.Close()
}

func copyLocal(source string, localPath string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

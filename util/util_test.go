package util

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const sampleVcap = `{
  "user-provided": [
    {"name": "ndvi-postgres", "label": "user-provided", "credentials": {"uri": "postgres://u:p@db:5432/ndvi", "port": 5432}}
  ],
  "s3": [
    {"name": "landsat-cache", "label": "s3", "credentials": {"bucket": "cache", "port": "not-a-number"}}
  ]
}`

func observeLogs(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	previous := SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(previous) })
	return logs
}

func TestParseVcapServices(t *testing.T) {
	services, err := ParseVcapServices([]byte(sampleVcap))
	require.NoError(t, err)

	assert.Equal(t, []string{"landsat-cache", "ndvi-postgres"}, services.ServiceNames())

	pg := services.FindServiceByName("ndvi-postgres")
	require.NotNil(t, pg)
	uri, err := pg.Credentials.String("uri")
	assert.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/ndvi", uri)
	_, err = pg.Credentials.String("port")
	assert.Contains(t, err.Error(), "is not a string")

	cache := services.FindServiceByName("landsat-cache")
	require.NotNil(t, cache)
	_, err = cache.Credentials.String("missing")
	assert.Contains(t, err.Error(), "does not exist")

	assert.Nil(t, services.FindServiceByName("nope"))
}

func TestParseVcapServices_Malformed(t *testing.T) {
	_, err := ParseVcapServices([]byte("{not json"))
	assert.Error(t, err)
}

func TestEnvAccessors_Defaults(t *testing.T) {
	os.Unsetenv(LANDSAT_HOST)
	os.Unsetenv(NDVI_CACHE_DIR)
	t.Setenv(NDVI_CHUNK_ROWS, "")
	t.Setenv(NDVI_HTTP_TIMEOUT, "")
	observeLogs(t)

	assert.Equal(t, defaultLandsatHost, GetLandsatHost())
	assert.Equal(t, defaultCacheDir, GetCacheDir())
	assert.Equal(t, defaultChunkRows, GetChunkRows())
	assert.Equal(t, defaultHTTPTimeout, GetHTTPTimeout())
	assert.True(t, GetWorkers() > 0)
}

func TestEnvAccessors_Invalid(t *testing.T) {
	logs := observeLogs(t)
	t.Setenv(NDVI_CHUNK_ROWS, "-3")
	t.Setenv(NDVI_HTTP_TIMEOUT, "soon")

	assert.Equal(t, defaultChunkRows, GetChunkRows())
	assert.Equal(t, defaultHTTPTimeout, GetHTTPTimeout())
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestEnvAccessors_Set(t *testing.T) {
	t.Setenv(LANDSAT_HOST, "http://example.localdomain")
	t.Setenv(NDVI_CHUNK_ROWS, "64")
	t.Setenv(NDVI_WORKERS, "3")
	t.Setenv(NDVI_HTTP_TIMEOUT, "30s")
	t.Setenv(AWS_REGION, "eu-west-1")
	t.Setenv("PORT", "9090")

	assert.Equal(t, "http://example.localdomain", GetLandsatHost())
	assert.Equal(t, 64, GetChunkRows())
	assert.Equal(t, 3, GetWorkers())
	assert.Equal(t, 30*time.Second, GetHTTPTimeout())
	assert.Equal(t, "eu-west-1", GetAWSRegion())
	assert.Equal(t, ":9090", GetPortStr())
}

func TestLogSimpleErr(t *testing.T) {
	logs := observeLogs(t)
	cause := errors.New("boom")

	err := LogSimpleErr(&BasicLogContext{}, "Fetching failed:", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Fetching failed: boom", err.Error())
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "bf-ndvi", entry.ContextMap()["app"])
}

func TestLogAudit_Severity(t *testing.T) {
	logs := observeLogs(t)
	ctx := &BasicLogContext{}

	LogAudit(ctx, LogAuditInput{Actor: "a", Action: "GET", Actee: "b", Message: "m1", Severity: INFO})
	LogAudit(ctx, LogAuditInput{Actor: "a", Action: "GET", Actee: "b", Message: "m2", Severity: ERROR})

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.InfoLevel, logs.All()[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
	assert.Equal(t, "GET", logs.All()[0].ContextMap()["action"])
	assert.Equal(t, ctx.SessionID(), logs.All()[1].ContextMap()["session"])
}

func TestHTTPError(t *testing.T) {
	observeLogs(t)
	req := httptest.NewRequest(http.MethodGet, "/ndvi/x", nil)
	rec := httptest.NewRecorder()

	HTTPError(req, rec, &BasicLogContext{}, "Scene not found: x", http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Scene not found: x", rec.Body.String())
	assert.Equal(t, "404: nope", HTTPErr{Status: 404, Message: "nope"}.Error())
}

func TestPsuUUID(t *testing.T) {
	a, err := PsuUUID()
	require.NoError(t, err)
	b, _ := PsuUUID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

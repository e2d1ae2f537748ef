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
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Severity is the severity attached to an audit message
type Severity string

// Audit severities
const (
	DEBUG   Severity = "debug"
	INFO    Severity = "info"
	WARNING Severity = "warning"
	ERROR   Severity = "error"
)

// LogContext identifies the application and session a log line belongs to
type LogContext interface {
	AppName() string
	SessionID() string
	LogRootDir() string
}

// BasicLogContext is a LogContext for code that has no session of its own
type BasicLogContext struct {
	sessionID string
}

// AppName returns the application name
func (ctx *BasicLogContext) AppName() string {
	return "bf-ndvi"
}

// SessionID returns a session ID, creating one if needed
func (ctx *BasicLogContext) SessionID() string {
	if ctx.sessionID == "" {
		ctx.sessionID, _ = PsuUUID()
	}
	return ctx.sessionID
}

// LogRootDir returns an empty string
func (ctx *BasicLogContext) LogRootDir() string {
	return ""
}

// LogAuditInput describes who did what to which resource
type LogAuditInput struct {
	Actor    string
	Action   string
	Actee    string
	Message  string
	Severity Severity
}

var (
	loggerMu sync.RWMutex
	logger   *zap.Logger
)

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	if strings.EqualFold(os.Getenv(NDVI_LOG_LEVEL), "debug") {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Logger returns the process-wide logger, building it on first use
func Logger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = newLogger()
	}
	return logger
}

// SetLogger replaces the process-wide logger and returns the previous one
func SetLogger(l *zap.Logger) *zap.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	previous := logger
	logger = l
	return previous
}

// SyncLogger flushes buffered log entries
func SyncLogger() {
	_ = Logger().Sync()
}

func contextFields(ctx LogContext) []zap.Field {
	if ctx == nil {
		return nil
	}
	return []zap.Field{
		zap.String("app", ctx.AppName()),
		zap.String("session", ctx.SessionID()),
	}
}

// LogInfo logs an informational message
func LogInfo(ctx LogContext, message string) {
	Logger().Info(message, contextFields(ctx)...)
}

// LogAlert logs a message that needs attention but is not an error
func LogAlert(ctx LogContext, message string) {
	Logger().Warn(message, contextFields(ctx)...)
}

// LogSimpleErr logs an error with a message and returns an error combining both
func LogSimpleErr(ctx LogContext, message string, err error) error {
	fields := append(contextFields(ctx), zap.Error(err))
	Logger().Error(message, fields...)
	if err == nil {
		return fmt.Errorf("%s", strings.TrimSpace(message))
	}
	return fmt.Errorf("%s %w", strings.TrimSpace(message), err)
}

// LogAudit logs an audit record
func LogAudit(ctx LogContext, input LogAuditInput) {
	fields := append(contextFields(ctx),
		zap.String("actor", input.Actor),
		zap.String("action", input.Action),
		zap.String("actee", input.Actee),
	)
	switch input.Severity {
	case DEBUG:
		Logger().Debug(input.Message, fields...)
	case WARNING:
		Logger().Warn(input.Message, fields...)
	case ERROR:
		Logger().Error(input.Message, fields...)
	default:
		Logger().Info(input.Message, fields...)
	}
}

// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package telemetry carries the structured-logging and tracing plumbing
// shared by the bluepyll packages.
package telemetry

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// LogEvent emits a structured log record enriched with a nanosecond
// timestamp and, when set, the workflow correlation ID.
func LogEvent(correlationID, message string, fields ...any) {
	baseFields := []any{"timestamp_ns", time.Now().UTC().UnixNano()}
	if correlationID != "" {
		baseFields = append(baseFields, "correlation_id", correlationID)
	}
	logger.Info(message, append(baseFields, fields...)...)
}

// LogWarn is LogEvent at warning level, used for benign precondition
// failures (e.g. an action invoked before the emulator is ready).
func LogWarn(correlationID, message string, fields ...any) {
	baseFields := []any{"timestamp_ns", time.Now().UTC().UnixNano()}
	if correlationID != "" {
		baseFields = append(baseFields, "correlation_id", correlationID)
	}
	logger.Warn(message, append(baseFields, fields...)...)
}

type lineWriter struct {
	correlationID string
	msg           string
	fields        []any
	buffer        []byte
}

func (w *lineWriter) Write(payload []byte) (int, error) {
	w.buffer = append(w.buffer, payload...)
	for {
		newlineIndex := bytes.IndexByte(w.buffer, '\n')
		if newlineIndex == -1 {
			break
		}
		line := strings.TrimSpace(string(w.buffer[:newlineIndex]))
		w.buffer = w.buffer[newlineIndex+1:]
		if line != "" {
			LogEvent(w.correlationID, w.msg, append(w.fields, "line", line)...)
		}
	}
	return len(payload), nil
}

// NewLineWriter returns an io.Writer that splits a process output stream
// into lines and forwards each as a structured log record.
func NewLineWriter(correlationID, message string, fields ...any) io.Writer {
	return &lineWriter{
		correlationID: correlationID,
		msg:           message,
		fields:        fields,
	}
}

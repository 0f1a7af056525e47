// Package logx writes structured log lines: one JSON object per line with a
// timestamp in the configured location and a level derived from "status".
package logx

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Logger emits JSON log entries tagged with a component name.
// It is safe for concurrent use.
type Logger struct {
	mu        *sync.Mutex
	w         io.Writer
	loc       *time.Location
	component string
}

// New returns a Logger writing to w. A nil loc means UTC.
func New(w io.Writer, loc *time.Location, component string) *Logger {
	if loc == nil {
		loc = time.UTC
	}
	return &Logger{mu: &sync.Mutex{}, w: w, loc: loc, component: component}
}

// Default writes to stdout in UTC.
func Default(component string) *Logger {
	return New(os.Stdout, time.UTC, component)
}

// Nop discards everything.
func Nop() *Logger {
	return New(io.Discard, time.UTC, "")
}

// With returns a Logger sharing the same output but tagged with another component.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{mu: l.mu, w: l.w, loc: l.loc, component: component}
}

// Location is the time zone used for "ts".
func (l *Logger) Location() *time.Location {
	if l == nil {
		return time.UTC
	}
	return l.loc
}

// Log writes data as one JSON line. Missing "level" is derived from "status".
func (l *Logger) Log(data map[string]any) {
	if l == nil {
		return
	}
	data["ts"] = time.Now().In(l.loc).Format(time.RFC3339Nano)
	if _, ok := data["component"]; !ok && l.component != "" {
		data["component"] = l.component
	}
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(b)
}

// Info logs a successful event.
func (l *Logger) Info(event string, fields map[string]any) {
	entry := merge(fields)
	entry["event"] = event
	if _, ok := entry["status"]; !ok {
		entry["status"] = "success"
	}
	l.Log(entry)
}

// Warn logs an event that degraded but did not fail the operation.
func (l *Logger) Warn(event string, err error, fields map[string]any) {
	entry := merge(fields)
	entry["event"] = event
	entry["level"] = "warn"
	if err != nil {
		entry["error_message"] = err.Error()
	}
	l.Log(entry)
}

// Error logs a failed event.
func (l *Logger) Error(event string, err error, fields map[string]any) {
	entry := merge(fields)
	entry["event"] = event
	entry["status"] = "error"
	if err != nil {
		entry["error_message"] = err.Error()
	}
	l.Log(entry)
}

func merge(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the request ID for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the ID stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

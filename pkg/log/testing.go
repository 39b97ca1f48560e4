package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// capture は TestLogger とその With 派生で共有される記録先
type capture struct {
	mu      sync.Mutex
	out     *bytes.Buffer
	records []map[string]interface{}
}

func (c *capture) append(rec map[string]interface{}) {
	line, err := json.Marshal(rec)
	if err != nil {
		line, _ = json.Marshal(map[string]interface{}{"severity": rec["severity"], "message": rec["message"]})
	}
	// 比較を JSON デコード後の値で行うため往復させる
	var decoded map[string]interface{}
	_ = json.Unmarshal(line, &decoded)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.Write(line)
	c.out.WriteByte('\n')
	c.records = append(c.records, decoded)
}

// TestLogger records log calls in memory. Derived loggers from With share
// the same records, and it is safe to use from search workers.
type TestLogger struct {
	sink   *capture
	level  Level
	fields map[string]interface{}
}

// NewTestLogger returns a logger keeping records at or above level, plus the
// JSON-lines buffer it writes to.
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	sink := &capture{out: &bytes.Buffer{}}
	return &TestLogger{sink: sink, level: level, fields: map[string]interface{}{}}, sink.out
}

func (t *TestLogger) Debug(msg string, fields ...any) { t.record(LevelDebug, msg, fields) }
func (t *TestLogger) Info(msg string, fields ...any)  { t.record(LevelInfo, msg, fields) }
func (t *TestLogger) Warn(msg string, fields ...any)  { t.record(LevelWarn, msg, fields) }
func (t *TestLogger) Error(msg string, fields ...any) { t.record(LevelError, msg, fields) }

func (t *TestLogger) With(fields ...any) Logger {
	merged := make(map[string]interface{}, len(t.fields)+len(fields)/2)
	for k, v := range t.fields {
		merged[k] = v
	}
	putFields(merged, fields)
	return &TestLogger{sink: t.sink, level: t.level, fields: merged}
}

func (t *TestLogger) Enabled(_ context.Context, level Level) bool { return level >= t.level }

func (t *TestLogger) record(level Level, msg string, fields []any) {
	if !t.Enabled(context.Background(), level) {
		return
	}
	rec := map[string]interface{}{"severity": level.String(), "message": msg}
	for k, v := range t.fields {
		rec[k] = v
	}
	putFields(rec, fields)
	t.sink.append(rec)
}

// putFields mirrors the zerolog logger: a lone leading error goes under
// ErrAttrKey and error values are stored as their message.
func putFields(dst map[string]interface{}, fields []any) {
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			dst[ErrAttrKey] = err.Error()
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		v := fields[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		dst[fmt.Sprint(fields[i])] = v
	}
}

// GetLogEntries returns a copy of the records captured so far.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	return append([]map[string]interface{}(nil), t.sink.records...), nil
}

func (t *TestLogger) ContainsMessage(message string) bool {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	return strings.Contains(t.sink.out.String(), message)
}

// ContainsField compares against decoded JSON, so numbers are float64.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, _ := t.GetLogEntries()
	for _, e := range entries {
		if v, ok := e[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear drops everything captured so far.
func (t *TestLogger) Clear() {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.out.Reset()
	t.sink.records = nil
}

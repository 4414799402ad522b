package logutil

import (
    "encoding/json"
    "fmt"
    "io"
    "log"
    "os"
    "sync/atomic"
    "time"
)

var (
    jsonMode  atomic.Bool
    debugMode atomic.Bool
)

func init() {
    if os.Getenv("KVROUTER_LOG_JSON") == "1" || os.Getenv("KVROUTER_LOG_FORMAT") == "json" {
        jsonMode.Store(true)
    }
    if os.Getenv("KVROUTER_LOG_DEBUG") == "1" {
        debugMode.Store(true)
    }
}

// SetJSON switches every helper to one JSON object per line.
func SetJSON(enabled bool) { jsonMode.Store(enabled) }

// SetDebug enables Debugf output, which is dropped otherwise.
func SetDebug(enabled bool) { debugMode.Store(enabled) }

// Discard returns a logger that writes nowhere; handy for tests and
// embedders that want silence.
func Discard() *log.Logger { return log.New(io.Discard, "", 0) }

func Debugf(l *log.Logger, f string, args ...any) {
    if !debugMode.Load() { return }
    logf(l, "debug", f, args...)
}
func Infof(l *log.Logger, f string, args ...any)  { logf(l, "info", f, args...) }
func Warnf(l *log.Logger, f string, args ...any)  { logf(l, "warn", f, args...) }
func Errorf(l *log.Logger, f string, args ...any) { logf(l, "error", f, args...) }

var prefixes = map[string]string{
    "debug": "DEBUG ",
    "info":  "INFO ",
    "warn":  "WARN ",
    "error": "ERROR ",
}

func logf(l *log.Logger, level, f string, args ...any) {
    if l == nil { l = log.Default() }
    msg := fmt.Sprintf(f, args...)
    if jsonMode.Load() {
        b, _ := json.Marshal(map[string]any{
            "ts":    time.Now().UTC().Format(time.RFC3339Nano),
            "level": level,
            "msg":   msg,
        })
        l.Println(string(b))
        return
    }
    log.New(l.Writer(), prefixes[level]+l.Prefix(), l.Flags()).Println(msg)
}

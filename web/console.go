//go:build js
// +build js

package web

import (
	"encoding/json"
	"strings"

	"github.com/gopherjs/gopherjs/js"
	"github.com/rs/zerolog"
)

// ConsoleWriter forwards zerolog JSON lines to the browser console, picking
// console.error/warn/debug/log by the line's level.
type ConsoleWriter struct{}

// Write implements io.Writer.
func (ConsoleWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	var fields map[string]interface{}
	method := "log"
	if err := json.Unmarshal(p, &fields); err == nil {
		level, _ := fields[zerolog.LevelFieldName].(string)
		switch level {
		case zerolog.LevelErrorValue, zerolog.LevelFatalValue, zerolog.LevelPanicValue:
			method = "error"
		case zerolog.LevelWarnValue:
			method = "warn"
		case zerolog.LevelDebugValue, zerolog.LevelTraceValue:
			method = "debug"
		}
		msg, _ := fields[zerolog.MessageFieldName].(string)
		delete(fields, zerolog.MessageFieldName)
		delete(fields, zerolog.LevelFieldName)
		js.Global.Get("console").Call(method, "[toybox] "+msg, fields)
		return len(p), nil
	}
	js.Global.Get("console").Call(method, line)
	return len(p), nil
}

// NewLogger builds the page logger at level; unknown levels mean info.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(ConsoleWriter{}).Level(lvl).With().Timestamp().Logger()
}

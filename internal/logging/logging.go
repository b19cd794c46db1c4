// Package logging builds the structured loggers used by the tools.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Level is shared by every handler New builds.
var Level = new(slog.LevelVar)

// New returns a logger writing text records to w at the given level and
// fanning out to any extra handlers.
func New(w io.Writer, level slog.Level, extra ...slog.Handler) *slog.Logger {
	Level.Set(level)
	handlers := []slog.Handler{
		slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level}),
	}
	handlers = append(handlers, extra...)
	return slog.New(slogmulti.Fanout(handlers...))
}

// JSONHandler returns a JSON handler on w sharing the package level.
func JSONHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: Level})
}

// ParseLevel maps debug, info, warn and error to slog levels. An empty
// string is warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

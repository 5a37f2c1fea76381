package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/sirupsen/logrus"
)

// Backend names accepted by New.
const (
	BackendSlog   = "slog"
	BackendLogrus = "logrus"
)

// New builds a Logger writing to w.
//
// level accepts debug, info, warn and error (unknown values mean info);
// format is "json" or "text"; backend is BackendSlog or BackendLogrus
// (anything else falls back to slog).
func New(w io.Writer, level, format, backend string) Logger {
	level = strings.ToLower(strings.TrimSpace(level))
	json := strings.EqualFold(strings.TrimSpace(format), "json")

	if strings.EqualFold(strings.TrimSpace(backend), BackendLogrus) {
		l := logrus.New()
		l.SetOutput(w)
		if lv, err := logrus.ParseLevel(level); err == nil {
			l.SetLevel(lv)
		} else {
			l.SetLevel(logrus.InfoLevel)
		}
		if json {
			l.SetFormatter(&logrus.JSONFormatter{})
		} else {
			l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
		}
		return NewLogrusLogger(l)
	}

	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return NewSlogLogger(slog.New(h))
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

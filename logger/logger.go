package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"videotube/config"
)

// New builds the process logger. Console output in debug mode, JSON otherwise.
func New(cfg *config.AppConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit sink. The upload worker process
// passes os.Stderr because its stdout carries the reply message.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
		if !cfg.IsProduction() {
			level = zerolog.DebugLevel
		}
	}

	out := w
	if cfg.Log.Format != "json" && !cfg.IsProduction() {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

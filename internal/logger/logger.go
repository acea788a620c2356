// Package logger initializes the zerolog global logger for the service:
// console output for dev/docker, rotated files for legacy deployments,
// and a prometheus hook counting statements per level.
package logger

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Console configures console output.
type Console struct {
	Enabled          bool `mapstructure:"enabled"`
	UseConsoleWriter bool `mapstructure:"pretty"`
}

// File configures rotated file output.
type File struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	InfoLog    string `mapstructure:"info"`
	ErrorLog   string `mapstructure:"error"`
	MaxSize    int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAge     int    `mapstructure:"maxAge"`
}

// Config is the logger configuration.
type Config struct {
	Level       string  `mapstructure:"level"`
	ServiceName string  `mapstructure:"serviceName"`
	Console     Console `mapstructure:"console"`
	File        File    `mapstructure:"file"`
}

// LevelWriter splits log output between an info and an error writer.
// Warn and up go to the error writer, everything else to info.
type LevelWriter struct {
	io.Writer
	InfoWriter  io.Writer
	ErrorWriter io.Writer
}

// WriteLevel links the event to the target output for its level.
func (lw *LevelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l == zerolog.Disabled {
		return 0, nil
	}

	w := lw.InfoWriter
	if l >= zerolog.WarnLevel {
		w = lw.ErrorWriter
	}

	return w.Write(p) //nolint:wrapcheck
}

// Init the zerolog logger. Enable at least one output or nothing is
// written.
func Init(cfg Config) error {
	logLevel, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("loglevel %s is not supported", cfg.Level))
	}

	if cfg.ServiceName == "" {
		return ErrServiceNameIsEmpty
	}

	zerolog.SetGlobalLevel(logLevel)

	ph := NewPrometheusHook(cfg.ServiceName)

	var writers []io.Writer

	if cfg.Console.Enabled {
		writers = append(writers, newConsoleWriter(cfg))
	}

	if cfg.File.Enabled {
		if w := newRollingFile(cfg.File); w != nil {
			writers = append(writers, w)
		}
	}

	mw := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(mw).Hook(ph).With().Timestamp().Logger()

	return nil
}

func newRollingFile(cfg File) io.Writer {
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil { //nolint: mnd
		log.Error().Err(err).Str("path", cfg.Path).Msg("can't create log directory")

		return nil
	}

	return &LevelWriter{
		InfoWriter: &lumberjack.Logger{
			Filename:   path.Join(cfg.Path, cfg.InfoLog),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		},
		ErrorWriter: &lumberjack.Logger{
			Filename:   path.Join(cfg.Path, cfg.ErrorLog),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		},
	}
}

func newConsoleWriter(cfg Config) io.Writer {
	lw := &LevelWriter{
		InfoWriter:  os.Stdout,
		ErrorWriter: os.Stderr,
	}

	if cfg.Console.UseConsoleWriter {
		lw.InfoWriter = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: zerolog.TimeFieldFormat,
		}

		lw.ErrorWriter = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}

	return lw
}

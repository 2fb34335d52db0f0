package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level      string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format     string `yaml:"format" json:"format"` // "text" or "json"
	Path       string `yaml:"path" json:"path"`     // log file; empty logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb" json:"maxSizeMb"`
	MaxBackups int    `yaml:"max_backups" json:"maxBackups"`
}

const (
	defaultMaxSizeMB  = 32
	defaultMaxBackups = 3
)

// Setup configures the standard logrus logger. When cfg.Path is set, output
// goes to stderr and to a size-rotated file. The returned closer releases
// the file and is safe to call when no file is used.
func Setup(cfg Config) io.Closer {
	return setup(log.StandardLogger(), os.Stderr, cfg)
}

func setup(l *log.Logger, stderr io.Writer, cfg Config) io.Closer {
	lvl, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		lvl = log.InfoLevel
		if cfg.Level != "" {
			l.Warnf("invalid log level %q, using info", cfg.Level)
		}
	}
	l.SetLevel(lvl)

	if cfg.Format == "json" {
		l.SetFormatter(&log.JSONFormatter{})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if cfg.Path == "" {
		l.SetOutput(stderr)
		return nopCloser{}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		l.SetOutput(stderr)
		l.Warnf("log dir %s: %v, logging to stderr only", filepath.Dir(cfg.Path), err)
		return nopCloser{}
	}

	w := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	if w.MaxSize <= 0 {
		w.MaxSize = defaultMaxSizeMB
	}
	if w.MaxBackups <= 0 {
		w.MaxBackups = defaultMaxBackups
	}
	l.SetOutput(io.MultiWriter(stderr, w))
	l.WithField("component", "logger").Debugf("logging to %s", cfg.Path)
	return w
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

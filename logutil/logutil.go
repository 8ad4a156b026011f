// Package logutil wires the repository's structured logging: a single
// zap core, writing to stderr or rotating through
// gopkg.in/natefinch/lumberjack.v2 when a log file is configured, in the
// style of the teacher package's zap-backed diagnostics.
package logutil

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	current = zap.NewNop()
)

// Config controls where and how verbosely the repository logs.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Empty defaults
	// to "info".
	Level string
	// File, when non-empty, is rotated through lumberjack instead of
	// writing to stderr.
	File string
	// MaxSizeMB is the lumberjack rotation threshold; ignored when File
	// is empty. Defaults to 100.
	MaxSizeMB int
}

// Init installs the process-wide logger built from cfg and returns it.
// Safe to call more than once (e.g. once from the CLI, once from tests);
// the last call wins.
func Init(cfg Config) *zap.Logger {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(level)); err != nil {
		zl = zapcore.InfoLevel
	}

	var ws zapcore.WriteSyncer
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename: cfg.File,
			MaxSize:  maxSize,
			Compress: true,
		})
	} else {
		ws = zapcore.Lock(zapcore.AddSync(os.Stderr))
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig()), ws, zl)
	logger := zap.New(core)

	mu.Lock()
	current = logger
	mu.Unlock()

	return logger
}

// L returns the current process-wide logger. Before Init is called it is
// a no-op logger, matching zap's own convention for an unconfigured
// global.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return current
}

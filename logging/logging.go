package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"incident-report-bot/config"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/apex/log/handlers/text"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the process logger. Entries go to stderr and, when LogFile is set,
// to a size-rotated file. The returned closer flushes and closes that file.
func New(cfg *config.Config) (*log.Logger, io.Closer, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg *config.Config, console io.Writer) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	handlers := []log.Handler{handler(cfg.LogFormat, console)}
	var closer io.Closer = nopCloser{}

	if cfg.LogFile != "" {
		if dir := filepath.Dir(cfg.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		}
		// The file always gets JSON entries.
		handlers = append(handlers, json.New(file))
		closer = file
	}

	return &log.Logger{Handler: multi.New(handlers...), Level: level}, closer, nil
}

func handler(format string, w io.Writer) log.Handler {
	if format == "json" {
		return json.New(w)
	}
	return text.New(w)
}

// Package logging wraps log/slog with a console handler and a weekly rotating JSON file.
package logging

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/giygas/cycletracker/config"
)

type LoggingService struct {
	Logger   *slog.Logger
	rotating *RotatingLogger
}

var (
	DefaultLoggingService *LoggingService
	serviceMu             sync.RWMutex

	fallbackOnce   sync.Once
	fallbackLogger *slog.Logger
)

// InitLogger initializes the global logger with 4 weeks retention and a 100MB file limit
func InitLogger(logDir string, env config.Environment, level string) error {
	return InitLoggerWithRetentionAndSize(logDir, env, level, 4, 100*1024*1024)
}

// InitLoggerWithRetentionAndSize initializes the global logger, replacing (and closing) any previous one.
// When the log directory cannot be used the logger falls back to console only and the error is returned.
func InitLoggerWithRetentionAndSize(logDir string, env config.Environment, level string, retentionWeeks int, maxFileSize int64) error {
	svc, err := newLoggingService(logDir, env, level, retentionWeeks, maxFileSize)

	serviceMu.Lock()
	previous := DefaultLoggingService
	DefaultLoggingService = svc
	serviceMu.Unlock()

	slog.SetDefault(svc.Logger)
	if previous != nil {
		_ = previous.Close()
	}
	return err
}

// Close flushes and closes the global logger's file, if any
func Close() error {
	serviceMu.Lock()
	svc := DefaultLoggingService
	DefaultLoggingService = nil
	serviceMu.Unlock()

	if svc == nil {
		return nil
	}
	return svc.Close()
}

func newLoggingService(logDir string, env config.Environment, level string, retentionWeeks int, maxFileSize int64) (*LoggingService, error) {
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: GetConsoleLogLevel(env, level, testVerbose()),
	})

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return &LoggingService{Logger: slog.New(consoleHandler)}, fmt.Errorf("failed to create logs directory: %w", err)
	}

	rl := NewRotatingLoggerWithSizeLimit(logDir, retentionWeeks, maxFileSize)
	rl.mu.Lock()
	err := rl.doRotate(getWeekKey(rl.now()))
	rl.mu.Unlock()
	if err != nil {
		return &LoggingService{Logger: slog.New(consoleHandler)}, fmt.Errorf("failed to initialize rotating logger: %w", err)
	}
	rl.startCleanup(24 * time.Hour)

	fileHandler := slog.NewJSONHandler(rl, &slog.HandlerOptions{
		Level: GetFileLogLevel(),
	})

	return &LoggingService{
		Logger:   slog.New(&multiHandler{handlers: []slog.Handler{consoleHandler, fileHandler}}),
		rotating: rl,
	}, nil
}

// Close releases the service's log file
func (s *LoggingService) Close() error {
	if s == nil || s.rotating == nil {
		return nil
	}
	return s.rotating.Close()
}

// GetConsoleLogLevel resolves the console level. Tests stay quiet unless run with -v;
// everywhere else an explicit LOG_LEVEL wins over the environment default.
func GetConsoleLogLevel(env config.Environment, levelStr string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}

	if strings.TrimSpace(levelStr) != "" {
		return parseLogLevel(levelStr)
	}

	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GetFileLogLevel returns the file level; the file keeps everything
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func testVerbose() bool {
	f := flag.Lookup("test.v")
	return f != nil && f.Value.String() == "true"
}

func logger() *slog.Logger {
	serviceMu.RLock()
	svc := DefaultLoggingService
	serviceMu.RUnlock()

	if svc != nil && svc.Logger != nil {
		return svc.Logger
	}

	// Fallback to console logger if not initialized
	fallbackOnce.Do(func() {
		fallbackLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	})
	return fallbackLogger
}

// Logger returns the global logger, or a console fallback before InitLogger
func Logger() *slog.Logger {
	return logger()
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}

// multiHandler implements slog.Handler to write to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}

package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FilePrefix is the prefix of every log file written by RotatingLogger
const FilePrefix = "cycletracker-"

var numberedFilePattern = regexp.MustCompile(`^` + regexp.QuoteMeta(FilePrefix) + `\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingLogger writes to one log file per ISO week, opening numbered
// overflow files when the size limit is reached.
type RotatingLogger struct {
	logDir      string
	currentFile *os.File
	currentWeek string
	retention   time.Duration
	maxFileSize int64
	currentSize atomic.Int64
	mu          sync.Mutex
	now         func() time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	cleanupOnce sync.Once
	cleanupDone chan struct{}
}

// NewRotatingLogger creates a rotating logger with a 100MB size limit
func NewRotatingLogger(logDir string, retentionWeeks int) *RotatingLogger {
	return NewRotatingLoggerWithSizeLimit(logDir, retentionWeeks, 100*1024*1024)
}

// NewRotatingLoggerWithSizeLimit creates a rotating logger with a custom size limit (0 disables it)
func NewRotatingLoggerWithSizeLimit(logDir string, retentionWeeks int, maxFileSize int64) *RotatingLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &RotatingLogger{
		logDir:      logDir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// getWeekKey returns the week key in YYYY-Www format (ISO week)
func getWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func baseFileName(week string) string {
	return FilePrefix + week + ".log"
}

// doRotate opens the file for targetWeek (caller holds mu)
func (rl *RotatingLogger) doRotate(targetWeek string) error {
	if rl.currentFile != nil {
		if err := rl.currentFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file during rotation: %v\n", err)
		}
		rl.currentFile = nil
	}

	sizeRotation := rl.currentWeek == targetWeek && rl.maxFileSize > 0 && rl.currentSize.Load() >= rl.maxFileSize
	fileName, fresh := rl.pickFile(targetWeek, sizeRotation)

	logPath := filepath.Join(rl.logDir, fileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	rl.currentFile = file
	rl.currentWeek = targetWeek

	if fresh {
		rl.currentSize.Store(0)
	} else if info, err := file.Stat(); err == nil {
		rl.currentSize.Store(info.Size())
	}

	return nil
}

// pickFile chooses the file to append to for targetWeek. fresh reports a brand-new numbered file.
func (rl *RotatingLogger) pickFile(targetWeek string, sizeRotation bool) (name string, fresh bool) {
	base := baseFileName(targetWeek)

	if !sizeRotation {
		info, err := os.Stat(filepath.Join(rl.logDir, base))
		if err != nil || rl.maxFileSize == 0 || info.Size() < rl.maxFileSize {
			return base, false
		}
	}

	highest, lastPath, lastSize := rl.highestNumberedFile(targetWeek)
	if lastPath != "" && lastSize < rl.maxFileSize {
		return filepath.Base(lastPath), false
	}

	return fmt.Sprintf("%s%s_%02d.log", FilePrefix, targetWeek, highest+1), true
}

// highestNumberedFile returns the highest overflow number for a week along with that file's path and size
func (rl *RotatingLogger) highestNumberedFile(targetWeek string) (int, string, int64) {
	matches, _ := filepath.Glob(filepath.Join(rl.logDir, FilePrefix+targetWeek+"_??.log"))

	highest := 0
	var lastPath string
	var lastSize int64

	for _, match := range matches {
		m := numberedFilePattern.FindStringSubmatch(filepath.Base(match))
		if len(m) < 2 {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		if num <= highest {
			continue
		}
		highest = num
		lastPath = match
		lastSize = 0
		if info, err := os.Stat(match); err == nil {
			lastSize = info.Size()
		}
	}

	return highest, lastPath, lastSize
}

// Write writes p to the current week's file, rotating first when needed
func (rl *RotatingLogger) Write(p []byte) (n int, err error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := getWeekKey(rl.now())
	needsRotation := rl.currentFile == nil || rl.currentWeek != week

	if rl.maxFileSize > 0 && !needsRotation {
		size := rl.currentSize.Load()
		if size >= rl.maxFileSize || size+int64(len(p)) > rl.maxFileSize {
			needsRotation = true
			rl.currentSize.Store(rl.maxFileSize)
		}
	}

	if needsRotation {
		if err = rl.doRotate(week); err != nil {
			return 0, err
		}
	}

	n, err = rl.currentFile.Write(p)
	rl.currentSize.Add(int64(n))
	return n, err
}

// cleanupOldLogs removes log files whose modification time is past the retention period
func (rl *RotatingLogger) cleanupOldLogs() (int, error) {
	entries, err := os.ReadDir(rl.logDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := rl.now().Add(-rl.retention)
	deleted := 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(rl.logDir, name)); err == nil {
				deleted++
			}
		}
	}

	return deleted, nil
}

// startCleanup runs cleanupOldLogs once a day until Close is called
func (rl *RotatingLogger) startCleanup(interval time.Duration) {
	rl.cleanupOnce.Do(func() {
		rl.cleanupDone = make(chan struct{})
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			defer close(rl.cleanupDone)

			for {
				select {
				case <-rl.ctx.Done():
					return
				case <-ticker.C:
					if n, err := rl.cleanupOldLogs(); err != nil {
						fmt.Fprintf(os.Stderr, "log cleanup failed: %v\n", err)
					} else if n > 0 {
						fmt.Fprintf(os.Stderr, "cleaned up %d old log files\n", n)
					}
				}
			}
		}()
	})
}

// Close stops background cleanup and closes the current file
func (rl *RotatingLogger) Close() error {
	rl.cancel()
	if rl.cleanupDone != nil {
		<-rl.cleanupDone
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.currentFile != nil {
		err := rl.currentFile.Close()
		rl.currentFile = nil
		return err
	}
	return nil
}

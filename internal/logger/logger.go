// Package logger provides dual logging for Bastion: a printf-style
// console+file logger for operator output and an slog-based structured
// logger for machine-readable records.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	instance *Logger
	once     sync.Once
)

// Logger writes operator-facing output to the console and a daily log file.
type Logger struct {
	out     *log.Logger
	errOut  *log.Logger
	logFile *os.File
	mu      sync.Mutex
}

// openLogFile opens (creating if needed) the daily log file under logDir.
func openLogFile(logDir string) (*os.File, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := "bastion-" + time.Now().Format("2006-01-02") + ".log"
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Init initializes the global logger instance. Safe to call once; later
// calls are no-ops.
func Init(logDir string) error {
	var initErr error
	once.Do(func() {
		var f *os.File
		f, initErr = openLogFile(logDir)
		if initErr != nil {
			return
		}
		instance = &Logger{
			out:     log.New(io.MultiWriter(os.Stdout, f), "", log.LstdFlags),
			errOut:  log.New(io.MultiWriter(os.Stderr, f), "ERROR: ", log.LstdFlags),
			logFile: f,
		}
	})
	return initErr
}

// Close closes the log file.
func Close() error {
	if instance != nil && instance.logFile != nil {
		return instance.logFile.Close()
	}
	return nil
}

// Info logs an informational message.
func Info(format string, v ...interface{}) {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.out.Printf(format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.errOut.Printf(format, v...)
}

// Println logs a simple message.
func Println(v ...interface{}) {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.out.Println(v...)
}

// Printf logs a formatted message.
func Printf(format string, v ...interface{}) {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.out.Printf(format, v...)
}

// Fatal logs a fatal error and exits.
func Fatal(v ...interface{}) {
	if instance == nil {
		log.Fatal(v...)
	}
	instance.mu.Lock()
	instance.errOut.Fatal(v...)
	instance.mu.Unlock()
}

// Fatalf logs a formatted fatal error and exits.
func Fatalf(format string, v ...interface{}) {
	if instance == nil {
		log.Fatalf(format, v...)
	}
	instance.mu.Lock()
	instance.errOut.Fatalf(format, v...)
	instance.mu.Unlock()
}

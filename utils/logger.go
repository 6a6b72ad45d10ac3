package utils

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"
)

// Logger appends timestamped lines to a file. Safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
}

func NewLogger(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &Logger{
		file:   file,
		logger: log.New(file, "", 0),
	}, nil
}

func (l *Logger) Log(message string) {
	l.write(2, message)
}

func (l *Logger) Logf(format string, args ...interface{}) {
	l.write(2, fmt.Sprintf(format, args...))
}

func (l *Logger) write(skip int, message string) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		file = "unknown"
		line = 0
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[%s] %s:%d %s\n", timestamp, file, line, message)
}

func (l *Logger) Close() error {
	return l.file.Close()
}

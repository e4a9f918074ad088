// Package core provides the small amount of process-wide plumbing every
// RoboOne binary needs: a logger and a config loader.
package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logger wraps the standard library logger with level-prefixed helpers and
// a file+console multiwriter, matching the shape every RoboOne process uses.
type Logger struct {
	file   *os.File
	logger *log.Logger
}

// InitLogger creates (or appends to) a daily log file under logsDir named
// "<componentID>_<yyyymmdd>.log" and fans output to both that file and
// stdout.
func InitLogger(logsDir, componentID string) (*Logger, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", logsDir, err)
	}

	logName := fmt.Sprintf("%s_%s.log", componentID, time.Now().Format("20060102"))
	logPath := filepath.Join(logsDir, logName)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", logPath, err)
	}

	w := io.MultiWriter(os.Stdout, file)
	return &Logger{
		file:   file,
		logger: log.New(w, "["+componentID+"] ", log.Ldate|log.Ltime|log.Lmicroseconds),
	}, nil
}

func (l *Logger) Info(f string, v ...any)    { l.logger.Printf("[INFO] "+f, v...) }
func (l *Logger) Warning(f string, v ...any) { l.logger.Printf("[WARNING] "+f, v...) }
func (l *Logger) Error(f string, v ...any)   { l.logger.Printf("[ERROR] "+f, v...) }
func (l *Logger) Success(f string, v ...any) { l.logger.Printf("[SUCCESS] "+f, v...) }

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

package logging

import (
	"os"
	"sync"
	"time"
)

// MultiLogger fans log entries out to all registered adapters
type MultiLogger struct {
	mu         sync.RWMutex
	level      LogLevel
	adapters   map[string]LogAdapter
	baseFields map[string]interface{}
}

// NewMultiLogger creates a logger with no adapters attached
func NewMultiLogger(level LogLevel) *MultiLogger {
	return &MultiLogger{
		level:      level,
		adapters:   make(map[string]LogAdapter),
		baseFields: make(map[string]interface{}),
	}
}

func (l *MultiLogger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DebugLevel, message, fields...)
}

func (l *MultiLogger) Info(message string, fields ...map[string]interface{}) {
	l.log(InfoLevel, message, fields...)
}

func (l *MultiLogger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WarnLevel, message, fields...)
}

func (l *MultiLogger) Error(message string, fields ...map[string]interface{}) {
	l.log(ErrorLevel, message, fields...)
}

func (l *MultiLogger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(FatalLevel, message, fields...)
	l.Close()
	os.Exit(1)
}

// WithField returns a copy of the logger carrying one extra field
func (l *MultiLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a copy of the logger carrying extra fields
func (l *MultiLogger) WithFields(fields map[string]interface{}) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	merged := make(map[string]interface{}, len(l.baseFields)+len(fields))
	for k, v := range l.baseFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	child := &MultiLogger{
		level:      l.level,
		adapters:   l.adapters,
		baseFields: merged,
	}
	return child
}

func (l *MultiLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *MultiLogger) AddAdapter(adapter LogAdapter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adapters[adapter.Name()] = adapter
}

func (l *MultiLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, adapter := range l.adapters {
		if err := adapter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *MultiLogger) log(level LogLevel, message string, fields ...map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level < l.level {
		return
	}

	merged := make(map[string]interface{}, len(l.baseFields))
	for k, v := range l.baseFields {
		merged[k] = v
	}
	for _, extra := range fields {
		for k, v := range extra {
			merged[k] = v
		}
	}

	entry := &LogEntry{
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Fields:    merged,
	}

	for _, adapter := range l.adapters {
		// Adapter failures must never take down the caller.
		_ = adapter.Write(entry)
	}
}

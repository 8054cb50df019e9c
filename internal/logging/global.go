package logging

import (
	"sync"

	"visascout/internal/config"
)

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// Initialize builds the process-wide logger from configuration. Unknown
// adapter types are skipped; with no adapters configured a stdout adapter
// is attached so logs are never silently dropped.
func Initialize(cfg *config.Config) Logger {
	logger := NewMultiLogger(ParseLevel(cfg.Logging.Level))

	attached := 0
	for _, ac := range cfg.Logging.Adapters {
		if !ac.Enabled {
			continue
		}
		switch ac.Type {
		case "stdout":
			format := cfg.Logging.Format
			if f, ok := ac.Options["format"].(string); ok && f != "" {
				format = f
			}
			logger.AddAdapter(NewStdoutAdapter(ac.Name, format))
			attached++
		case "file":
			path, _ := ac.Options["path"].(string)
			if path == "" {
				continue
			}
			if adapter, err := NewFileAdapter(ac.Name, path); err == nil {
				logger.AddAdapter(adapter)
				attached++
			}
		}
	}
	if attached == 0 {
		logger.AddAdapter(NewStdoutAdapter("stdout", cfg.Logging.Format))
	}

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
	return logger
}

// GetGlobalLogger returns the process-wide logger, creating a plain stdout
// logger if Initialize was never called (tests, small tools).
func GetGlobalLogger() Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		fallback := NewMultiLogger(InfoLevel)
		fallback.AddAdapter(NewStdoutAdapter("stdout", "json"))
		globalLogger = fallback
	}
	return globalLogger
}

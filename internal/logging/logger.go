package logging

import (
	"log/slog"
	"strings"
	"sync"
)

const defaultBufferSize = 500

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex
	logBuffer       = NewRingBuffer(defaultBufferSize)
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// Initialize sets up the logging system. Loggers handed out before
// Initialize are rebuilt so they pick up the configured format.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	globalLevelVar.Set(levelOrDefault(config.Level, slog.LevelInfo))

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(config, module))
		moduleLoggers[module] = slog.New(newHandler(module, config.Format, levelVar, logBuffer))
	}

	slog.SetDefault(slog.New(newHandler("", config.Format, globalLevelVar, logBuffer)))
}

// SetLevels updates global and per-module levels in place without
// recreating handlers. Used when the config file is reloaded.
func SetLevels(level string, modules map[string]string) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig.Level = level
	globalConfig.Modules = modules
	globalLevelVar.Set(levelOrDefault(level, slog.LevelInfo))

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(globalConfig, module))
	}
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	return logBuffer
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	format := "text"
	if isInitialized {
		levelVar.Set(moduleLevel(globalConfig, module))
		format = globalConfig.Format
	}

	logger := slog.New(newHandler(module, format, levelVar, logBuffer))
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

func moduleLevel(config Config, module string) slog.Level {
	level := levelOrDefault(config.Level, slog.LevelInfo)
	if levelStr, exists := config.Modules[module]; exists {
		level = levelOrDefault(levelStr, level)
	}
	return level
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func levelOrDefault(level string, def slog.Level) slog.Level {
	if l, ok := ParseLevel(level); ok {
		return l
	}
	return def
}

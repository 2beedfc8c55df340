// Package logging provides config-driven categorized file-based logging for
// polytrope. Logs are written to .polytrope/logs/ with separate files per
// category. Logging is controlled by debug_mode in .polytrope/config.json -
// when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config, table loading
	CategorySession  Category = "session"  // Session lifecycle, process selection
	CategoryResolver Category = "resolver" // State resolution, phase branching
	CategoryArbiter  Category = "arbiter"  // Edit sequencing, stale-write guard
	CategoryOracle   Category = "oracle"   // Property lookups, saturation fetches
	CategoryEnvelope Category = "envelope" // Envelope cache hits/refreshes
	CategoryRules    Category = "rules"    // Plan kernel evaluation and queries
	CategoryStore    Category = "store"    // SQLite history persistence
	CategoryEnergy   Category = "energy"   // Work/heat balance computation
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig to avoid
// circular imports.
type loggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
	JSONFormat bool            `json:"json_format"`
}

// configFile structure for reading .polytrope/config.json.
type configFile struct {
	Logging loggingConfig `json:"logging"`
}

// StructuredLogEntry is the JSON form of one log line.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"` // Unix milliseconds
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers      = make(map[Category]*Logger)
	loggersMu    sync.RWMutex
	logsDir      string
	workspace    string
	config       loggingConfig
	configMu     sync.RWMutex
	logLevel     int
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config. Should be called
// once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".polytrope", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	// Silent no-op in production mode.
	if !config.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== polytrope logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Log level: %s", config.Level)

	return nil
}

func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	path := filepath.Join(workspace, ".polytrope", "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet: logging stays disabled.
			config = loggingConfig{}
			return nil
		}
		return err
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// ReloadConfig re-reads the logging configuration from disk.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode reports whether debug logging is globally enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled reports whether a category should emit logs.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	// Empty category map means all categories enabled.
	if len(config.Categories) == 0 {
		return true
	}
	enabled, ok := config.Categories[string(category)]
	return ok && enabled
}

// Get returns the logger for a category, creating the log file on first use.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	// Date-prefixed files for easy rotation.
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Print(string(data))
}

func (l *Logger) emit(levelNo int, level, format string, args ...interface{}) {
	if l.logger == nil || logLevel > levelNo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	configMu.RLock()
	jsonFmt := config.JSONFormat
	configMu.RUnlock()
	if jsonFmt {
		l.logJSON(level, msg)
		return
	}
	l.logger.Printf("[%s] %s", level, msg)
}

// Debug logs a debug-level message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.emit(LevelDebug, "DEBUG", format, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit(LevelInfo, "INFO", format, args...)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit(LevelWarn, "WARN", format, args...)
}

// Error logs an error-level message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit(LevelError, "ERROR", format, args...)
}

// CloseAll flushes and closes every open log file. Call on shutdown.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
}

// =============================================================================
// PERFORMANCE TIMERS
// =============================================================================

// Timer measures one operation for the performance log.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer begins timing an operation in a category.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop ends the timer and logs the elapsed time at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s took %v", t.operation, elapsed)
	return elapsed
}

// StopWithThreshold logs at warn level when the operation exceeded the
// threshold, debug otherwise.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("SLOW: %s took %v (threshold %v)", t.operation, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s took %v", t.operation, elapsed)
	}
	return elapsed
}

// =============================================================================
// CATEGORY CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Session logs to the session category.
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to the session category.
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// Resolver logs to the resolver category.
func Resolver(format string, args ...interface{}) {
	Get(CategoryResolver).Info(format, args...)
}

// ResolverDebug logs debug to the resolver category.
func ResolverDebug(format string, args ...interface{}) {
	Get(CategoryResolver).Debug(format, args...)
}

// ResolverError logs error to the resolver category.
func ResolverError(format string, args ...interface{}) {
	Get(CategoryResolver).Error(format, args...)
}

// Arbiter logs to the arbiter category.
func Arbiter(format string, args ...interface{}) {
	Get(CategoryArbiter).Info(format, args...)
}

// ArbiterDebug logs debug to the arbiter category.
func ArbiterDebug(format string, args ...interface{}) {
	Get(CategoryArbiter).Debug(format, args...)
}

// Oracle logs to the oracle category.
func Oracle(format string, args ...interface{}) {
	Get(CategoryOracle).Info(format, args...)
}

// OracleDebug logs debug to the oracle category.
func OracleDebug(format string, args ...interface{}) {
	Get(CategoryOracle).Debug(format, args...)
}

// OracleError logs error to the oracle category.
func OracleError(format string, args ...interface{}) {
	Get(CategoryOracle).Error(format, args...)
}

// Envelope logs to the envelope category.
func Envelope(format string, args ...interface{}) {
	Get(CategoryEnvelope).Info(format, args...)
}

// EnvelopeDebug logs debug to the envelope category.
func EnvelopeDebug(format string, args ...interface{}) {
	Get(CategoryEnvelope).Debug(format, args...)
}

// Rules logs to the rules category.
func Rules(format string, args ...interface{}) {
	Get(CategoryRules).Info(format, args...)
}

// RulesDebug logs debug to the rules category.
func RulesDebug(format string, args ...interface{}) {
	Get(CategoryRules).Debug(format, args...)
}

// Store logs to the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Energy logs to the energy category.
func Energy(format string, args ...interface{}) {
	Get(CategoryEnergy).Info(format, args...)
}

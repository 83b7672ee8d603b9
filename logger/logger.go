// Package logger provides structured logging for DLite.
//
// The logger supports multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
// and includes contextual information such as file, function, and line
// numbers. It is designed for lock-free level checking via atomic
// operations, so a disabled level costs almost nothing.
//
// Log output format:
//   YYYY/MM/DD HH:MM:SS.ssssss [PID:GID] [LEVEL] function.file:line: message
package logger

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel represents the severity of a log message. Higher values are
// more severe; setting a level silences everything below it.
type LogLevel int32

const (
	TRACE LogLevel = iota // subsystem-gated, very verbose
	DEBUG                 // diagnostic detail: layout sweeps, driver resolution steps
	INFO                  // normal lifecycle: storage opened/closed, driver registered
	WARN                  // recoverable oddities: a plugin module that fails to load
	ERROR                 // operation failed and was reported to the caller
)

var (
	currentLevel atomic.Int32

	levelNames = map[LogLevel]string{
		TRACE: "TRACE",
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
	}

	// traceSubsystems tracks which subsystems have TRACE output enabled.
	// Common subsystems: "registry", "layout", "refcount", "datamodel".
	traceSubsystems = make(map[string]bool)
	traceMutex      sync.RWMutex

	processID = os.Getpid()

	logger *log.Logger
)

func init() {
	logger = log.New(os.Stdout, "", 0)
	currentLevel.Store(int32(INFO))
}

// SetLogLevel sets the minimum log level by name.
func SetLogLevel(level string) error {
	switch strings.ToUpper(level) {
	case "TRACE":
		currentLevel.Store(int32(TRACE))
	case "DEBUG":
		currentLevel.Store(int32(DEBUG))
	case "INFO":
		currentLevel.Store(int32(INFO))
	case "WARN":
		currentLevel.Store(int32(WARN))
	case "ERROR":
		currentLevel.Store(int32(ERROR))
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
	return nil
}

// GetLogLevel returns the current minimum log level's name.
func GetLogLevel() string {
	return levelNames[LogLevel(currentLevel.Load())]
}

// EnableTrace turns on TRACE output for the named subsystems.
func EnableTrace(subsystems ...string) {
	traceMutex.Lock()
	defer traceMutex.Unlock()
	for _, s := range subsystems {
		traceSubsystems[s] = true
	}
}

// DisableTrace turns off TRACE output for the named subsystems.
func DisableTrace(subsystems ...string) {
	traceMutex.Lock()
	defer traceMutex.Unlock()
	for _, s := range subsystems {
		delete(traceSubsystems, s)
	}
}

// ClearTrace disables all trace subsystems.
func ClearTrace() {
	traceMutex.Lock()
	defer traceMutex.Unlock()
	traceSubsystems = make(map[string]bool)
}

func isTraceEnabled(subsystem string) bool {
	traceMutex.RLock()
	defer traceMutex.RUnlock()
	return traceSubsystems[subsystem]
}

func formatMessage(level LogLevel, skip int, format string, args ...interface{}) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		file = "unknown"
		line = 0
	}
	if idx := strings.LastIndex(file, "/"); idx != -1 {
		file = file[idx+1:]
	}
	if idx := strings.LastIndex(file, ".go"); idx != -1 {
		file = file[:idx]
	}

	funcName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		full := fn.Name()
		if idx := strings.LastIndex(full, "."); idx != -1 {
			funcName = full[idx+1:]
		}
	}

	msg := fmt.Sprintf(format, args...)
	threadID := goroutineID()
	timestamp := time.Now().Format("2006/01/02 15:04:05.000000")
	return fmt.Sprintf("%s [%d:%d] [%s] %s.%s:%d: %s",
		timestamp, processID, threadID, levelNames[level], funcName, file, line, msg)
}

func goroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(string(buf[:n]))[1]
	id := 0
	fmt.Sscanf(idField, "%d", &id)
	return id
}

func logMessage(level LogLevel, skip int, format string, args ...interface{}) {
	if level < LogLevel(currentLevel.Load()) {
		return
	}
	logger.Println(formatMessage(level, skip, format, args...))
}

// TraceIf logs a TRACE message only when the named subsystem is enabled.
func TraceIf(subsystem string, format string, args ...interface{}) {
	if LogLevel(currentLevel.Load()) > TRACE || !isTraceEnabled(subsystem) {
		return
	}
	logMessage(TRACE, 3, "[%s] %s", subsystem, fmt.Sprintf(format, args...))
}

func Trace(format string, args ...interface{}) { logMessage(TRACE, 3, format, args...) }
func Debug(format string, args ...interface{}) { logMessage(DEBUG, 3, format, args...) }
func Info(format string, args ...interface{})  { logMessage(INFO, 3, format, args...) }
func Warn(format string, args ...interface{})  { logMessage(WARN, 3, format, args...) }
func Error(format string, args ...interface{}) { logMessage(ERROR, 3, format, args...) }

// Configure applies DLITE_LOG_LEVEL and DLITE_TRACE_SUBSYSTEMS from the
// environment. Callers that want logging configured from the process
// environment call this once at startup; the core never calls it itself.
func Configure() {
	if level := os.Getenv("DLITE_LOG_LEVEL"); level != "" {
		_ = SetLogLevel(level)
	}
	if trace := os.Getenv("DLITE_TRACE_SUBSYSTEMS"); trace != "" {
		subsystems := strings.Split(trace, ",")
		for i, s := range subsystems {
			subsystems[i] = strings.TrimSpace(s)
		}
		EnableTrace(subsystems...)
	}
}

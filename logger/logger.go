package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger is the main logger struct
type Logger struct {
	verbose     bool
	mu          sync.Mutex
	// errorは stderr，それ以外は stdout
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
}

var defaultLogger *Logger

func init() {
	defaultLogger = New(false, os.Stdout, os.Stderr)
}

// New creates a Logger writing info/warn/debug lines to out and errors to errOut.
func New(verbose bool, out, errOut io.Writer) *Logger {
	return &Logger{
		verbose:     verbose,
		errorLogger: log.New(errOut, "[ERROR] ", log.LstdFlags),
		warnLogger:  log.New(out, "[WARN]  ", log.LstdFlags),
		infoLogger:  log.New(out, "[INFO]  ", log.LstdFlags),
		debugLogger: log.New(out, "[DEBUG] ", log.LstdFlags),
	}
}

// SetVerbose sets the verbose mode for the default logger
func SetVerbose(verbose bool) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.verbose = verbose
}

// IsVerbose returns whether verbose mode is enabled
func IsVerbose() bool {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	return defaultLogger.verbose
}

// SetOutput redirects the default logger. Used by tests to capture output.
func SetOutput(out, errOut io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.errorLogger.SetOutput(errOut)
	defaultLogger.warnLogger.SetOutput(out)
	defaultLogger.infoLogger.SetOutput(out)
	defaultLogger.debugLogger.SetOutput(out)
}

// SetFlags sets the output flags for all loggers (like log.SetFlags)
func SetFlags(flag int) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.errorLogger.SetFlags(flag)
	defaultLogger.warnLogger.SetFlags(flag)
	defaultLogger.infoLogger.SetFlags(flag)
	defaultLogger.debugLogger.SetFlags(flag)
}

func (l *Logger) isVerbose() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verbose
}

// Errorf logs a formatted error message (always shown)
func Errorf(format string, v ...interface{}) {
	defaultLogger.errorLogger.Output(2, fmt.Sprintf(format, v...))
}

// Warnf logs a formatted recoverable failure to stdout
func Warnf(format string, v ...interface{}) {
	defaultLogger.warnLogger.Output(2, fmt.Sprintf(format, v...))
}

// Info logs an informational message (always shown)
func Info(v ...interface{}) {
	defaultLogger.infoLogger.Output(2, fmt.Sprint(v...))
}

// Infof logs a formatted informational message (always shown)
func Infof(format string, v ...interface{}) {
	defaultLogger.infoLogger.Output(2, fmt.Sprintf(format, v...))
}

// Debug logs a debug message (shown only in verbose mode)
func Debug(v ...interface{}) {
	if defaultLogger.isVerbose() {
		defaultLogger.debugLogger.Output(2, fmt.Sprint(v...))
	}
}

// Debugf logs a formatted debug message (shown only in verbose mode)
func Debugf(format string, v ...interface{}) {
	if defaultLogger.isVerbose() {
		defaultLogger.debugLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	defaultLogger.errorLogger.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}

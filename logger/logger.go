package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	base *logrus.Logger
	mu   sync.Mutex
}

var (
	instance *Logger
	once     sync.Once
)

// GetLogger returns a singleton logger instance
func GetLogger() *Logger {
	once.Do(func() {
		instance = setupLogger(os.Stderr)
	})
	return instance
}

// L is shorthand for GetLogger.
func L() *Logger {
	return GetLogger()
}

// New builds a standalone logger writing to w. Used by tests and by callers
// that must not share the process-wide instance.
func New(w io.Writer) *Logger {
	return setupLogger(w)
}

func setupLogger(w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.InfoLevel) // Default to info, no debug logs
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "02-01-06:15:04:05",
	})

	return &Logger{base: base}
}

func (l *Logger) entry(props map[string]interface{}) *logrus.Entry {
	// Get caller information, skipping entry and the level method
	pc, file, line, ok := runtime.Caller(2)

	fields := logrus.Fields{}
	if ok {
		fields["location"] = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		fields["package"] = filepath.Base(filepath.Dir(file))
		if fn := runtime.FuncForPC(pc); fn != nil {
			fields["function"] = filepath.Base(fn.Name())
		}
	}
	for k, v := range props {
		fields[k] = v
	}

	return l.base.WithFields(fields)
}

func firstProps(props []map[string]interface{}) map[string]interface{} {
	if len(props) > 0 {
		return props[0]
	}
	return nil
}

func (l *Logger) Info(msg string, props ...map[string]interface{}) {
	l.entry(firstProps(props)).Info(msg)
}

func (l *Logger) Error(msg string, props ...map[string]interface{}) {
	l.entry(firstProps(props)).Error(msg)
}

func (l *Logger) Debug(msg string, props ...map[string]interface{}) {
	l.entry(firstProps(props)).Debug(msg)
}

// EnableDebug enables debug logging
func (l *Logger) EnableDebug() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base.SetLevel(logrus.DebugLevel)
}

// DisableDebug disables debug logging
func (l *Logger) DisableDebug() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base.SetLevel(logrus.InfoLevel)
}

// SetOutput redirects log output, e.g. to capture it in tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base.SetOutput(w)
}

package btsnoop

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface the analysis packages write to.
// Callers embedding the engine in a larger pipeline can install their
// own implementation with SetLogger; the default wraps logrus.
type Logger interface {
	Info(...interface{})
	Debug(...interface{})
	Error(...interface{})
	Warn(...interface{})

	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Warnf(string, ...interface{})

	ChildLogger(tags map[string]interface{}) Logger
}

var (
	logger   Logger
	loggerMu sync.Mutex
)

// SetLogLevelMax turns on trace-level output on the default logger.
func SetLogLevelMax() {
	if lg, ok := GetLogger().(*defaultLogger); ok {
		lg.Entry.Logger.SetLevel(logrus.TraceLevel)
		return
	}
	GetLogger().Warn("log level is managed by the installed logger")
}

func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

func GetLogger() Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger == nil {
		logger = newDefaultLogger()
	}

	return logger
}

type defaultLogger struct {
	*logrus.Entry
}

func newDefaultLogger() Logger {
	l := &logrus.Logger{
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Level:     logrus.InfoLevel,
		Out:       os.Stderr,
		Hooks:     make(logrus.LevelHooks),
	}

	return &defaultLogger{Entry: l.WithField("pkg", "btsnoop")}
}

func (d *defaultLogger) ChildLogger(tags map[string]interface{}) Logger {
	return &defaultLogger{d.Entry.WithFields(tags)}
}

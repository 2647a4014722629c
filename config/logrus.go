package config

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerMu sync.RWMutex
	logg     = newLogger(logrus.InfoLevel)
)

func newLogger(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	l.SetOutput(os.Stdout)
	return l
}

// GetLogger returns the process-wide JSON logger.
func GetLogger() *logrus.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logg
}

// InitLogger replaces the process logger with one at the given level.
// Unknown levels fall back to info.
func InitLogger(level string) *logrus.Logger {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l := newLogger(lvl)

	loggerMu.Lock()
	logg = l
	loggerMu.Unlock()
	return l
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}

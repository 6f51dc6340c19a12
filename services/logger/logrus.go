// Package logsvc implements core.Logger.
package logsvc

import (
	"fmt"
	"io/ioutil"

	"github.com/sirupsen/logrus"

	"github.com/trezcool/masomo-fees/core"
)

// NewLogrus returns the process logger: JSON outside of debug mode.
func NewLogrus(conf *core.Config) *logrus.Logger {
	log := logrus.New()
	if conf.Debug {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// entry turns logger args into logrus fields.
func entry(log *logrus.Logger, args []interface{}) *logrus.Entry {
	e := logrus.NewEntry(log)
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			e = e.WithError(v)
		case map[string]interface{}:
			e = e.WithFields(v)
		case core.Actor:
			e = e.WithFields(logrus.Fields{"actor_id": v.ID, "actor": v.Username})
		default:
			e = e.WithField(fmt.Sprintf("arg%d", i), v)
		}
	}
	return e
}

// LogrusLogger logs to logrus only.
type LogrusLogger struct {
	log *logrus.Logger
}

var _ core.Logger = (*LogrusLogger)(nil)

func NewLogrusLogger(log *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{log: log}
}

// NewDiscardLogger is used in tests.
func NewDiscardLogger() *LogrusLogger {
	log := logrus.New()
	log.SetOutput(ioutil.Discard)
	return &LogrusLogger{log: log}
}

func (l LogrusLogger) Debug(msg string, args ...interface{}) { entry(l.log, args).Debug(msg) }
func (l LogrusLogger) Info(msg string, args ...interface{})  { entry(l.log, args).Info(msg) }
func (l LogrusLogger) Warn(msg string, args ...interface{})  { entry(l.log, args).Warn(msg) }
func (l LogrusLogger) Error(msg string, args ...interface{}) { entry(l.log, args).Error(msg) }
func (l LogrusLogger) Fatal(msg string, args ...interface{}) { entry(l.log, args).Fatal(msg) }

package logsvc

import (
	"fmt"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"

	"github.com/esmeraldinha/backend/core"
)

// RollbarLogger reports to Rollbar and mirrors every entry on a logrus logger.
type RollbarLogger struct {
	std *logrus.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *logrus.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)

	if conf.Debug {
		std.SetLevel(logrus.DebugLevel)
	}
	return &RollbarLogger{std: std}
}

// NewStdLogger returns the logrus logger used by the apps: text output on stderr.
func NewStdLogger(appName string) *logrus.Logger {
	std := logrus.New()
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	std.AddHook(appNameHook(appName))
	return std
}

type appNameHook string

func (h appNameHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h appNameHook) Fire(e *logrus.Entry) error {
	e.Data["app"] = string(h)
	return nil
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	return append(newArgs, args...)
}

func (l RollbarLogger) entry(args []interface{}) *logrus.Entry {
	e := logrus.NewEntry(l.std)
	var extra []interface{}
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			e = e.WithError(a)
		case map[string]interface{}:
			e = e.WithFields(a)
		default:
			extra = append(extra, a)
		}
	}
	if len(extra) > 0 {
		e = e.WithField("args", fmt.Sprintf("%+v", extra))
	}
	return e
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.entry(args).Debug(msg)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.entry(args).Info(msg)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.entry(args).Warn(msg)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.entry(args).Error(msg)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	rollbar.Wait()
	l.entry(args).Fatal(msg)
}

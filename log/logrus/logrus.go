// Package logrus adapts a *logrus.Entry to rescache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/rescache"
)

type Logger struct{ E *logrus.Entry }

var _ rescache.Logger = Logger{}

func New(l *logrus.Logger) Logger {
	return Logger{E: logrus.NewEntry(l).WithField("component", "rescache")}
}

func (l Logger) Debug(msg string, f rescache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f rescache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f rescache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f rescache.Fields) { l.with(f).Error(msg) }

// with moves an "err" field to logrus' error key.
func (l Logger) with(f rescache.Fields) *logrus.Entry {
	e := l.E
	if len(f) == 0 {
		return e
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			e = e.WithError(err)
			continue
		}
		lf[k] = v
	}
	return e.WithFields(lf)
}

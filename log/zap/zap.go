// Package zap adapts a *zap.Logger to rescache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/rescache"
)

type Logger struct{ L *zap.Logger }

var _ rescache.Logger = Logger{}

// New names the logger "rescache".
func New(l *zap.Logger) Logger { return Logger{L: l.Named("rescache")} }

func (z Logger) Debug(msg string, f rescache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f rescache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f rescache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f rescache.Fields) { z.L.Error(msg, fields(f)...) }

// fields sorts keys so output is stable; errors use zap's error encoding.
func fields(f rescache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}

package logger

import "go.uber.org/zap"

// Adapter exposes a zap logger through the key/value Logger interface the
// call and chat packages log with.
type Adapter struct {
	sugar *zap.SugaredLogger
}

func NewAdapter(l *zap.Logger) *Adapter {
	if l == nil {
		l = zap.NewNop()
	}
	return &Adapter{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a *Adapter) Debug(msg string, args ...interface{}) { a.sugar.Debugw(msg, args...) }
func (a *Adapter) Info(msg string, args ...interface{})  { a.sugar.Infow(msg, args...) }
func (a *Adapter) Warn(msg string, args ...interface{})  { a.sugar.Warnw(msg, args...) }
func (a *Adapter) Error(msg string, args ...interface{}) { a.sugar.Errorw(msg, args...) }

// With returns an adapter that adds the key/value pairs to every entry.
func (a *Adapter) With(args ...interface{}) *Adapter {
	return &Adapter{sugar: a.sugar.With(args...)}
}

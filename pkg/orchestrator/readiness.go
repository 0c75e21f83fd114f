package orchestrator

import (
	"context"
	"sync"
)

// sessionFuture is the one-shot readiness signal for the remote handle.
// Everything that needs the handle waits here instead of reading a field.
type sessionFuture struct {
	once sync.Once
	done chan struct{}
	sess LiveSession
	err  error
}

func newSessionFuture() *sessionFuture {
	return &sessionFuture{done: make(chan struct{})}
}

// resolve publishes the outcome. Only the first call has an effect.
func (f *sessionFuture) resolve(sess LiveSession, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.sess, f.err = sess, err
		close(f.done)
		resolved = true
	})
	return resolved
}

func (f *sessionFuture) wait(ctx context.Context) (LiveSession, error) {
	select {
	case <-f.done:
		return f.sess, f.err
	case <-ctx.Done():
		return nil, ErrSessionClosed
	}
}

// peek returns the handle if it has already resolved successfully.
func (f *sessionFuture) peek() LiveSession {
	select {
	case <-f.done:
		return f.sess
	default:
		return nil
	}
}

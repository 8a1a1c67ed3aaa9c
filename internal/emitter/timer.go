package emitter

import (
	"context"
	"sync"
	"time"
)

// ticker is a cancellable recurring timer running fn on its own goroutine.
// The context handed to fn is cancelled when the ticker is stopped.
type ticker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startTicker(interval time.Duration, fn func(ctx context.Context)) *ticker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &ticker{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		tk := time.NewTicker(interval)
		defer tk.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				// A tick may race with cancellation in the select.
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()

	return t
}

// stop cancels the ticker without waiting, so it is safe to call from fn.
func (t *ticker) stop() {
	if t != nil {
		t.cancel()
	}
}

// timerSlot owns at most one ticker. Replacing the ticker stops the previous one first.
type timerSlot struct {
	mu      sync.Mutex
	current *ticker
}

func (s *timerSlot) replace(interval time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.stop()
	s.current = startTicker(interval, fn)
}

func (s *timerSlot) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.stop()
	s.current = nil
}

func (s *timerSlot) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// done exposes the running ticker's exit channel; nil when idle.
func (s *timerSlot) done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.done
}

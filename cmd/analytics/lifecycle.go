package main

import (
	"log/slog"
	"sync"
)

// lifecycle tracks background workers and the resources they use. Shutdown
// cancels the workers, waits for them, and only then closes the resources,
// so a final snapshot never races a closed connection pool.
type lifecycle struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	closers []func() error
}

// Go runs fn in a tracked goroutine.
func (l *lifecycle) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// OnClose registers a resource release; releases run in reverse order.
func (l *lifecycle) OnClose(fn func() error) {
	l.mu.Lock()
	l.closers = append(l.closers, fn)
	l.mu.Unlock()
}

// Shutdown calls cancel, waits for every worker, then runs the releases.
func (l *lifecycle) Shutdown(cancel func()) {
	cancel()
	l.wg.Wait()
	l.mu.Lock()
	closers := l.closers
	l.closers = nil
	l.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			slog.Error("closing resource failed", "error", err)
		}
	}
}

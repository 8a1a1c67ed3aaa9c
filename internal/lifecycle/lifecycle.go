// Package lifecycle defines the capability interfaces components opt into.
package lifecycle

import (
	"context"
	"sync"
)

// Disposable releases resources synchronously.
type Disposable interface {
	Dispose()
}

// AsyncDisposable releases resources that may need I/O to shut down.
type AsyncDisposable interface {
	DisposeAsync(ctx context.Context) error
}

// Service has an explicit started and stopped state.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DisposableFunc adapts a function to Disposable. The function runs at most once.
func DisposableFunc(fn func()) Disposable {
	return &onceDisposable{fn: fn}
}

type onceDisposable struct {
	once sync.Once
	fn   func()
}

func (d *onceDisposable) Dispose() {
	d.once.Do(d.fn)
}

// Group disposes a set of disposables in reverse order of addition.
type Group struct {
	mu    sync.Mutex
	items []Disposable
}

// Add appends a disposable to the group.
func (g *Group) Add(d Disposable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.items = append(g.items, d)
}

// Dispose disposes every member and empties the group.
func (g *Group) Dispose() {
	g.mu.Lock()
	items := g.items
	g.items = nil
	g.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		items[i].Dispose()
	}
}

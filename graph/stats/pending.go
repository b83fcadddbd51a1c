package stats

import (
	"context"
	"sync"
)

// Source produces statistics snapshots. Fetching may block on I/O.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Snapshot, error)

// Snapshot calls f.
func (f SourceFunc) Snapshot(ctx context.Context) (*Snapshot, error) { return f(ctx) }

// Pending is an in-flight snapshot fetch. Compilation only ever sees the
// resolved *Snapshot; the wait happens at the caller's boundary.
type Pending struct {
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	snap *Snapshot
	err  error
}

// FetchAsync starts fetching a snapshot from src on its own goroutine.
// Cancelling ctx or calling Cancel aborts the fetch.
func FetchAsync(ctx context.Context, src Source) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(p.done)
		snap, err := src.Snapshot(ctx)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		p.snap, p.err = snap, err
	}()
	return p
}

// Done is closed once the fetch has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the fetch finishes or ctx is done. A ctx expiring here
// does not cancel the fetch itself.
func (p *Pending) Wait(ctx context.Context) (*Snapshot, error) {
	select {
	case <-p.done:
		p.once.Do(p.cancel)
		if p.err != nil {
			return nil, p.err
		}
		return p.snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts the fetch. Wait then returns the cancellation error unless the
// fetch had already completed.
func (p *Pending) Cancel() {
	p.once.Do(p.cancel)
}

package actors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("actor pool closed")

// ActorPool hands out a fixed number of turn slots. Acquire blocks until a
// slot is free, the context is done, or the pool is closed.
type ActorPool struct {
	mu     sync.Mutex
	actors []*Actor
	free   chan *Actor
	closed chan struct{}
	once   sync.Once
}

// NewActorPool creates a pool with size slots (at least one).
func NewActorPool(size int) *ActorPool {
	if size <= 0 {
		size = 1
	}
	p := &ActorPool{
		actors: make([]*Actor, size),
		free:   make(chan *Actor, size),
		closed: make(chan struct{}),
	}
	for i := range size {
		a := &Actor{ID: fmt.Sprintf("turn-%d", i), Status: ActorIdle}
		p.actors[i] = a
		p.free <- a
	}
	return p
}

// Acquire takes a slot for sessionID.
func (p *ActorPool) Acquire(ctx context.Context, sessionID string) (*Actor, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case a := <-p.free:
		p.mu.Lock()
		a.Status = ActorBusy
		a.CurrentSession = sessionID
		a.Turns++
		p.mu.Unlock()
		slog.Debug("actor acquired", "actor", a.ID, "session_id", sessionID)
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrPoolClosed
	}
}

// Release returns a slot to the pool.
func (p *ActorPool) Release(a *Actor) {
	if a == nil {
		return
	}
	p.mu.Lock()
	a.Status = ActorIdle
	a.CurrentSession = ""
	p.mu.Unlock()
	p.free <- a
}

// Run executes fn while holding a slot.
func (p *ActorPool) Run(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	a, err := p.Acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer p.Release(a)
	return fn(ctx)
}

// Close stops handing out slots. Turns already running are not interrupted.
func (p *ActorPool) Close() {
	p.once.Do(func() { close(p.closed) })
}

// Snapshot returns a copy of every slot's state.
func (p *ActorPool) Snapshot() []Actor {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Actor, len(p.actors))
	for i, a := range p.actors {
		out[i] = *a
	}
	return out
}

// Busy returns the number of slots in use.
func (p *ActorPool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, a := range p.actors {
		if a.Status == ActorBusy {
			n++
		}
	}
	return n
}

// Size returns the number of slots.
func (p *ActorPool) Size() int { return len(p.actors) }

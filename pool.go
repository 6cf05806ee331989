package yoloseg

import (
	"context"
	"sync"

	"github.com/swdee/go-yoloseg/preprocess"
)

// Pool is a simple engine pool holding multiple sessions of the same Model so
// frames can be processed concurrently
type Pool struct {
	// pool of engines
	engines chan Engine
	// size of pool
	size   int
	mu     sync.Mutex
	closed bool
}

// NewPool creates a new engine pool
func NewPool(size int, factory EngineFactory, spec ModelSpec,
	policy preprocess.ScalePolicy) (*Pool, error) {

	if size <= 0 {
		size = 1
	}

	p := &Pool{
		engines: make(chan Engine, size),
		size:    size,
	}

	for i := 0; i < size; i++ {
		eng, err := factory(spec, policy)

		if err != nil {
			// close any instances that may have been created before receiving
			// the error
			p.Close()
			return nil, err
		}

		// attach to pool
		p.Return(eng)
	}

	return p, nil
}

// Size returns the number of engines in the pool
func (p *Pool) Size() int {
	return p.size
}

// Get an engine from the pool, blocking until one is free or ctx is done
func (p *Pool) Get(ctx context.Context) (Engine, error) {

	select {
	case eng, ok := <-p.engines:
		if !ok {
			return nil, ErrClosed
		}

		return eng, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return an engine to the pool, engines returned after Close are closed
func (p *Pool) Return(eng Engine) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = eng.Close()
		return
	}

	select {
	case p.engines <- eng:
	default:
		// pool is full
		_ = eng.Close()
	}
}

// Close the pool and all engines in it
func (p *Pool) Close() {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true

	// close channel
	close(p.engines)

	// close all engines
	for next := range p.engines {
		_ = next.Close()
	}
}

package gridgoblin

import "sync"

// ChunkRequest is an opaque handle to an in-flight or completed chunk load,
// returned by World.RequestChunkLoad. The caller polls it or cancels it;
// cancellation is best-effort per §5's "Cancellation & timeouts".
type ChunkRequest struct {
	id ChunkId

	mu        sync.Mutex
	done      bool
	cancelled bool
	chunk     *Chunk
	err       error
	onCancel  func()
	waitCh    chan struct{}
}

func newChunkRequest(id ChunkId) *ChunkRequest {
	return &ChunkRequest{id: id, waitCh: make(chan struct{})}
}

// ChunkId returns the chunk this request is for.
func (r *ChunkRequest) ChunkId() ChunkId { return r.id }

// Poll returns (chunk, true) if the request has completed successfully,
// (nil, false) if it's still pending, and a non-nil error if it failed or
// was cancelled.
func (r *ChunkRequest) Poll() (*Chunk, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		return nil, false, nil
	}
	if r.cancelled {
		return nil, true, ErrRequestCancelled
	}
	return r.chunk, true, r.err
}

// Cancel removes the request from the spooler's input queue if it hasn't
// started yet; if already in flight, its result is discarded when it
// completes. Safe to call more than once.
func (r *ChunkRequest) Cancel() {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	cancel := r.onCancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *ChunkRequest) complete(c *Chunk, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.chunk = c
	r.err = err
	close(r.waitCh)
}

func (r *ChunkRequest) markCancelled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.cancelled = true
	close(r.waitCh)
}

// Wait blocks until the request completes, for synchronous callers (tests,
// CLIs) that don't want to poll.
func (r *ChunkRequest) Wait() (*Chunk, error) {
	<-r.waitCh
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return nil, ErrRequestCancelled
	}
	return r.chunk, r.err
}

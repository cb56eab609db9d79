package gridgoblin

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// spoolerQueueCapacity bounds the spooler's input queue, per §5's "two
// bounded MPSC queues (input: requests; output: completions)".
const spoolerQueueCapacity = 4096

type spoolJob struct {
	req       *ChunkRequest
	id        ChunkId
	priority  int
	seq       int64
	index     int
	cancelled bool
}

type jobHeap []*spoolJob

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // higher priority first
	}
	return h[i].seq < h[j].seq // then FIFO
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *jobHeap) Push(x any) {
	job := x.(*spoolJob)
	job.index = len(*h)
	*h = append(*h, job)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[:n-1]
	return job
}

// Spooler is the chunk engine's single background worker: it drains a
// priority+FIFO input queue of (ChunkId, priority) load requests, performs
// disk IO off the main thread, and hands each completed (or synthesized
// default) chunk back through the request's own completion channel. It
// never touches the World's in-RAM index itself -- installation happens on
// the main thread via World.PollSpooler or GetChunkAtIdUnchecked, per §5's
// "the in-RAM index and the spooler never both hold an owning reference to
// the same chunk simultaneously" invariant.
type Spooler struct {
	world *World
	log   *slog.Logger

	mu  sync.Mutex
	pq  jobHeap
	seq int64

	notify chan struct{}
	cancel context.CancelFunc
	eg     *errgroup.Group
}

func newSpooler(world *World, log *slog.Logger) *Spooler {
	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)
	s := &Spooler{
		world:  world,
		log:    log.With("subsystem", "gridgoblin.spooler"),
		notify: make(chan struct{}, 1),
		cancel: cancel,
	}
	s.eg = eg
	eg.Go(func() error { return s.run(egCtx) })
	return s
}

func (s *Spooler) run(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.pq.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil
			case <-s.notify:
				continue
			}
		}
		job := heap.Pop(&s.pq).(*spoolJob)
		s.mu.Unlock()

		if job.cancelled {
			continue
		}

		chunk, err := s.loadFromDisk(job.id)
		if err != nil {
			s.log.Error("chunk load failed", "chunk", job.id, "error", err)
		}

		s.mu.Lock()
		cancelled := job.cancelled
		s.mu.Unlock()
		if cancelled {
			job.req.markCancelled()
			continue
		}
		job.req.complete(&chunk, err)
	}
}

func (s *Spooler) loadFromDisk(id ChunkId) (Chunk, error) {
	mask := s.world.contents.BuildingBlocks
	cx, cy := s.world.contents.CellsPerChunkX, s.world.contents.CellsPerChunkY

	if c, ok, err := s.world.io.loadChunk(id, runtimeCache, mask, cx, cy); err != nil {
		return Chunk{}, err
	} else if ok {
		return c, nil
	}
	if c, ok, err := s.world.io.loadChunk(id, persistentCache, mask, cx, cy); err != nil {
		return Chunk{}, err
	} else if ok {
		return c, nil
	}
	c := NewChunk(mask, cx, cy)
	fillDefaultOpenness(&c, s.world.contents.MaxCellOpenness)
	return c, nil
}

// submit enqueues a load request for id at the given priority, returning a
// handle to poll, wait on, or cancel.
func (s *Spooler) submit(id ChunkId, priority int) *ChunkRequest {
	req := newChunkRequest(id)

	s.mu.Lock()
	if s.pq.Len() >= spoolerQueueCapacity {
		s.mu.Unlock()
		req.complete(nil, ErrInvalidArgument)
		return req
	}
	job := &spoolJob{req: req, id: id, priority: priority, seq: s.seq}
	s.seq++
	heap.Push(&s.pq, job)
	s.mu.Unlock()

	req.onCancel = func() { s.cancelJob(job) }

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return req
}

func (s *Spooler) cancelJob(job *spoolJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.index >= 0 {
		heap.Remove(&s.pq, job.index)
		job.req.markCancelled()
		return
	}
	job.cancelled = true
}

func (s *Spooler) close() error {
	s.cancel()
	return s.eg.Wait()
}

package gridgoblin

import (
	"container/heap"
	"testing"
)

func TestJobHeapOrdersByPriorityThenFIFO(t *testing.T) {
	var h jobHeap
	heap.Init(&h)

	push := func(priority int, seq int64) *spoolJob {
		j := &spoolJob{priority: priority, seq: seq}
		heap.Push(&h, j)
		return j
	}

	// Mix insertion order so only heap ordering (not push order) can make
	// this pass: two low-priority jobs bracket a high-priority one, and two
	// equal-priority jobs must come out in their original FIFO order.
	push(0, 0)
	push(5, 1)
	push(0, 2)
	push(5, 3)

	var order []int64
	for h.Len() > 0 {
		job := heap.Pop(&h).(*spoolJob)
		order = append(order, job.seq)
	}

	want := []int64{1, 3, 0, 2}
	if len(order) != len(want) {
		t.Fatalf("got %d jobs, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", order, want)
		}
	}
}

func TestSpoolerSubmitCompletesWithSynthesizedDefaultChunk(t *testing.T) {
	w := newTestWorld(t, validContents())
	id := ChunkId{X: 7, Y: 7}

	req := w.spooler.submit(id, 0)
	c, err := req.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if c == nil || c.IsNull() {
		t.Fatal("expected a synthesized default chunk")
	}
}

func TestSpoolerCancelBeforeWorkerStartsRemovesQueuedJob(t *testing.T) {
	w := newTestWorld(t, validContents())

	// Fill the worker with one blocking-ish job by submitting many requests
	// and immediately cancelling a later one; because disk IO here is fast
	// this mainly exercises the "still queued" removal path via the heap
	// index bookkeeping rather than the "in flight" race, which is covered
	// by TestWorldRequestChunkLoadCancel.
	var reqs []*ChunkRequest
	for i := 0; i < 8; i++ {
		reqs = append(reqs, w.spooler.submit(ChunkId{X: uint16(i), Y: 0}, 0))
	}
	reqs[len(reqs)-1].Cancel()

	for i, r := range reqs {
		_, err := r.Wait()
		if i == len(reqs)-1 {
			if err != nil && err != ErrRequestCancelled {
				t.Fatalf("req %d: unexpected error %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("req %d: unexpected error %v", i, err)
		}
	}
}

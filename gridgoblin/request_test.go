package gridgoblin

import "testing"

func TestChunkRequestPollBeforeCompletion(t *testing.T) {
	req := newChunkRequest(ChunkId{X: 1, Y: 1})
	if _, done, err := req.Poll(); done || err != nil {
		t.Fatalf("Poll on pending request = (done=%v, err=%v), want (false, nil)", done, err)
	}
}

func TestChunkRequestCompleteThenPoll(t *testing.T) {
	req := newChunkRequest(ChunkId{X: 1, Y: 1})
	c := NewChunk(BlockCellKindId, 2, 2)
	req.complete(&c, nil)

	got, done, err := req.Poll()
	if !done || err != nil || got != &c {
		t.Fatalf("Poll after complete = (%v, %v, %v)", got, done, err)
	}
}

func TestChunkRequestDoubleCancelIsSafe(t *testing.T) {
	req := newChunkRequest(ChunkId{X: 1, Y: 1})
	calls := 0
	req.onCancel = func() { calls++; req.markCancelled() }

	req.Cancel()
	req.Cancel() // second call must be a no-op: request is already done

	if calls != 1 {
		t.Fatalf("onCancel invoked %d times, want 1", calls)
	}
	if _, _, err := req.Poll(); err != ErrRequestCancelled {
		t.Fatalf("got %v, want ErrRequestCancelled", err)
	}
}

func TestChunkRequestWaitUnblocksOnCompletion(t *testing.T) {
	req := newChunkRequest(ChunkId{X: 2, Y: 2})
	c := NewChunk(BlockCellKindId, 2, 2)
	done := make(chan struct{})
	go func() {
		req.complete(&c, nil)
		close(done)
	}()
	<-done
	got, err := req.Wait()
	if err != nil || got != &c {
		t.Fatalf("Wait() = (%v, %v), want (%v, nil)", got, err, &c)
	}
}

package playback

import "testing"

// The full Open/Start path needs a real container (demux.Open opens
// an actual file via reisen) and is exercised by cmd/zenplayer instead
// of a unit test, the same way the teacher carries no test file for
// controller_stream.go's equivalent construction path. SeekAsync's
// request-coalescing is pure channel logic and testable in isolation.

func newSeekOnlyController() *Controller {
	return &Controller{seekCh: make(chan seekRequest, 1)}
}

func TestSeekAsyncKeepsOnlyLatestRequest(t *testing.T) {
	c := newSeekOnlyController()

	c.SeekAsync(1000, false)
	c.SeekAsync(2000, false)
	c.SeekAsync(3000, true)

	select {
	case req := <-c.seekCh:
		if req.targetMs != 3000 || !req.backward {
			t.Fatalf("got %+v, want targetMs=3000 backward=true", req)
		}
	default:
		t.Fatal("expected a coalesced request on seekCh")
	}

	select {
	case req := <-c.seekCh:
		t.Fatalf("expected exactly one coalesced request, got extra %+v", req)
	default:
	}
}

func TestDrainLatestSeekCollapsesQueuedRequests(t *testing.T) {
	c := &Controller{seekCh: make(chan seekRequest, 2)}
	c.seekCh <- seekRequest{targetMs: 500}
	c.seekCh <- seekRequest{targetMs: 1500, backward: true}

	req := seekRequest{targetMs: 500}
	c.drainLatestSeek(&req)

	if req.targetMs != 1500 || !req.backward {
		t.Fatalf("got %+v, want targetMs=1500 backward=true", req)
	}
}

package state

import (
	"sync"
	"testing"
	"time"
)

func TestWhitelistedTransitions(t *testing.T) {
	m := New()
	if err := m.Request(Opening); err != nil {
		t.Fatalf("Idle->Opening should be allowed: %v", err)
	}
	if err := m.Request(Playing); err == nil {
		t.Fatal("Opening->Playing should be rejected")
	}
	if err := m.Request(Stopped); err != nil {
		t.Fatalf("Opening->Stopped should be allowed: %v", err)
	}
	if err := m.Request(Playing); err != nil {
		t.Fatalf("Stopped->Playing should be allowed: %v", err)
	}
	if m.Get() != Playing {
		t.Fatalf("state = %v, want Playing", m.Get())
	}
}

func TestSubscribersSeeCommitOrder(t *testing.T) {
	m := New()
	var mu sync.Mutex
	var seen []State
	m.Subscribe(func(from, to State) {
		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()
	})

	transitions := []State{Opening, Stopped, Playing, Paused, Playing, Stopped, Closing}
	for _, next := range transitions {
		if err := m.Request(next); err != nil {
			t.Fatalf("transition to %v: %v", next, err)
		}
	}
	if len(seen) != len(transitions) {
		t.Fatalf("saw %d transitions, want %d", len(seen), len(transitions))
	}
	for i, want := range transitions {
		if seen[i] != want {
			t.Fatalf("transition %d: got %v, want %v", i, seen[i], want)
		}
	}
}

func TestWaitForResumeUnblocksOnResume(t *testing.T) {
	m := New()
	m.Request(Opening)
	m.Request(Stopped)
	m.Request(Playing)
	m.Request(Paused)

	done := make(chan struct{})
	go func() {
		m.WaitForResume()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitForResume returned before Resume")
	case <-time.After(30 * time.Millisecond):
	}

	m.Request(Playing)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForResume did not unblock after leaving Paused")
	}
}

func TestWaitForResumeUnblocksOnClosing(t *testing.T) {
	m := New()
	m.Request(Opening)
	m.Request(Stopped)
	m.Request(Playing)
	m.Request(Paused)

	done := make(chan struct{})
	go func() {
		m.WaitForResume()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	m.Request(Closing)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForResume did not unblock on Closing")
	}
}

package mirror

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestProcessedSetClaimIsAtomic(t *testing.T) {
	p := NewProcessedSet()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.Claim("requests>=2") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("Claim won %d times, want 1", wins.Load())
	}
	if p.State("requests>=2") != StateInFlight || p.Processed("requests>=2") {
		t.Errorf("state = %s", p.State("requests>=2"))
	}
}

func TestProcessedSetStates(t *testing.T) {
	p := NewProcessedSet()
	p.Claim("a")
	p.Claim("b")
	p.Finish("a", StateResolved)
	p.Finish("b", StateSkipped)

	if !p.Processed("a") || p.Processed("b") || p.Processed("c") {
		t.Error("only resolved keys count as processed")
	}
	if p.Claim("b") {
		t.Error("skipped key claimed again")
	}
	if p.Len() != 1 {
		t.Errorf("Len = %d", p.Len())
	}
	if StateUnvisited.String() != "unvisited" || StateFailed.String() != "failed" {
		t.Error("State.String")
	}
}

package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestStore_CountersAccumulate(t *testing.T) {
	s := NewStore("1.2.3", time.Now().Add(-time.Minute))

	s.GenerationStarted()
	s.GenerationStarted()
	s.GenerationFinished(true)
	s.GenerationFinished(false)
	s.ImageServed()
	s.CreditRefusal()
	s.RateLimitRefusal()
	s.CreditsPurchased(100)
	s.CreditsPurchased(50)

	snap := s.Snapshot()
	if snap.GenerationsStarted != 2 {
		t.Errorf("GenerationsStarted = %d, want 2", snap.GenerationsStarted)
	}
	if snap.GenerationsSucceeded != 1 || snap.GenerationsFailed != 1 {
		t.Errorf("outcomes = %d/%d, want 1/1", snap.GenerationsSucceeded, snap.GenerationsFailed)
	}
	if snap.ImagesServed != 1 || snap.CreditRefusals != 1 || snap.RateLimitRefusals != 1 {
		t.Errorf("serve/refusal counters = %d/%d/%d, want 1/1/1",
			snap.ImagesServed, snap.CreditRefusals, snap.RateLimitRefusals)
	}
	if snap.CreditsPurchased != 150 {
		t.Errorf("CreditsPurchased = %d, want 150", snap.CreditsPurchased)
	}
	if snap.Version != "1.2.3" {
		t.Errorf("Version = %q", snap.Version)
	}
	if snap.UptimeSeconds < 59 {
		t.Errorf("UptimeSeconds = %d, want >= 59", snap.UptimeSeconds)
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	s := NewStore("test", time.Now())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.GenerationStarted()
				s.GenerationFinished(j%2 == 0)
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.GenerationsStarted != 800 {
		t.Errorf("GenerationsStarted = %d, want 800", snap.GenerationsStarted)
	}
	if snap.GenerationsSucceeded+snap.GenerationsFailed != 800 {
		t.Errorf("outcomes sum = %d, want 800", snap.GenerationsSucceeded+snap.GenerationsFailed)
	}
}

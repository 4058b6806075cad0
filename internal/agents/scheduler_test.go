package agents

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RegisterValidation(t *testing.T) {
	s := NewScheduler()
	if err := s.Register(Agent{ID: "", Interval: time.Second, Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("empty id accepted")
	}
	if err := s.Register(Agent{ID: "a", Interval: 0, Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("zero interval accepted")
	}
	ok := Agent{ID: "a", Interval: time.Second, Run: func(ctx context.Context) error { return nil }}
	if err := s.Register(ok); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(ok); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestScheduler_NoOverlapPerAgent(t *testing.T) {
	s := NewScheduler()

	var inFlight, maxInFlight, runs int32
	err := s.Register(Agent{
		ID:       "slow",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			cur := atomic.AddInt32(&inFlight, 1)
			defer atomic.AddInt32(&inFlight, -1)
			for {
				prev := atomic.LoadInt32(&maxInFlight)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, cur) {
					break
				}
			}
			atomic.AddInt32(&runs, 1)
			time.Sleep(40 * time.Millisecond) // spans many ticks
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", got)
	}
	if atomic.LoadInt32(&runs) == 0 {
		t.Fatal("agent never ran")
	}
	if s.Skipped("slow") == 0 {
		t.Fatal("no ticks skipped despite the run spanning many intervals")
	}
}

func TestScheduler_AgentsRunIndependently(t *testing.T) {
	s := NewScheduler()

	blockerStarted := make(chan struct{})
	var once sync.Once
	release := make(chan struct{})
	err := s.Register(Agent{
		ID:       "blocker",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			once.Do(func() { close(blockerStarted) })
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	var freeRuns int32
	err = s.Register(Agent{
		ID:       "free",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&freeRuns, 1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-blockerStarted
	time.Sleep(50 * time.Millisecond)
	close(release)
	s.Stop()

	if atomic.LoadInt32(&freeRuns) == 0 {
		t.Fatal("free agent starved while blocker held its own slot")
	}
}

func TestScheduler_ErrorsDoNotStopTicker(t *testing.T) {
	s := NewScheduler()
	var runs int32
	err := s.Register(Agent{
		ID:       "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return errors.New("transient")
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&runs) < 2 {
		t.Fatalf("agent ran %d times, want repeated ticks despite errors", runs)
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := NewScheduler()
	if err := s.Register(Agent{ID: "a", Interval: time.Hour, Run: func(ctx context.Context) error { return nil }}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("double Start accepted")
	}
	if err := s.Register(Agent{ID: "b", Interval: time.Hour, Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("Register after Start accepted")
	}
	s.Stop()
	s.Stop() // idempotent

	// A stopped scheduler can be started again.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop()
}

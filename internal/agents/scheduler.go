// Package agents runs named background agents on independent tickers.
// An agent is any periodic behavior of the runtime: the desire generator
// sweeping recent memory, the dreamer, queue drains. Invocations of one
// agent never overlap; distinct agents run independently.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"volition/internal/logging"
)

// Func is one agent invocation. Errors are logged and the ticker keeps
// going; a background agent failing once is not a reason to stop trying.
type Func func(ctx context.Context) error

// Agent is a named periodic behavior.
type Agent struct {
	ID       string
	Interval time.Duration
	Run      Func
}

// Scheduler owns the tickers and lifecycles of its agents. Register
// before Start; Stop waits for in-flight invocations to finish.
type Scheduler struct {
	log *slog.Logger

	mu      sync.Mutex
	agents  map[string]Agent
	running map[string]bool // per-id in-flight flag
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	skipped map[string]int // per-id overlap skips, for status surfaces
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		log:     logging.New("agents"),
		agents:  make(map[string]Agent),
		running: make(map[string]bool),
		skipped: make(map[string]int),
	}
}

// Register adds an agent. Registering after Start or with a duplicate id
// or non-positive interval is an error.
func (s *Scheduler) Register(a Agent) error {
	if a.ID == "" || a.Run == nil {
		return errors.New("agents: id and run func required")
	}
	if a.Interval <= 0 {
		return fmt.Errorf("agents: %s needs a positive interval", a.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("agents: scheduler already started")
	}
	if _, dup := s.agents[a.ID]; dup {
		return fmt.Errorf("agents: duplicate agent id %q", a.ID)
	}
	s.agents[a.ID] = a
	return nil
}

// IDs lists registered agent ids.
func (s *Scheduler) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	return ids
}

// Skipped reports how many invocations of an agent were dropped because
// a previous invocation was still running.
func (s *Scheduler) Skipped(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped[id]
}

// Start launches one ticker goroutine per agent. It is an error to start
// twice without an intervening Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("agents: already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, a := range s.agents {
		s.wg.Add(1)
		go s.tickLoop(runCtx, a)
	}
	s.log.Info("scheduler started", "agents", len(s.agents))
	return nil
}

// Stop cancels the tickers and waits for in-flight invocations.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) tickLoop(ctx context.Context, a Agent) {
	defer s.wg.Done()
	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.invoke(ctx, a)
		}
	}
}

// invoke runs one agent tick unless the previous tick is still in
// flight, in which case the tick is dropped rather than queued. Slow
// agents therefore degrade to a lower effective frequency instead of
// piling up concurrent runs.
func (s *Scheduler) invoke(ctx context.Context, a Agent) {
	s.mu.Lock()
	if s.running[a.ID] {
		s.skipped[a.ID]++
		s.mu.Unlock()
		s.log.Debug("tick skipped, previous run in flight", "agent", a.ID)
		return
	}
	s.running[a.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running[a.ID] = false
			s.mu.Unlock()
		}()

		start := time.Now()
		if err := a.Run(ctx); err != nil {
			s.log.Warn("agent run failed", "agent", a.ID, "err", err, "took", time.Since(start))
			return
		}
		s.log.Debug("agent run finished", "agent", a.ID, "took", time.Since(start))
	}()
}

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"volition/internal/agent"
	"volition/internal/audit"
	"volition/internal/config"
	"volition/internal/desire"
	"volition/internal/flow"
	"volition/internal/graph"
	"volition/internal/llm"
	"volition/internal/logging"
	"volition/internal/memory"
	"volition/internal/queue"
	"volition/internal/skill"
)

const auditMaxSize = 16 << 20

// runtime bundles everything a command needs, wired once from config.
type runtime struct {
	cfg      config.Config
	bridge   llm.Bridge
	skills   *skill.Registry
	records  *memory.SqlStore
	desires  *desire.MemoryStore
	pipeline *desire.Pipeline
	loop     *agent.Loop
	dreamer  *agent.Loop
	queue    *queue.RetryQueue
	registry *graph.Registry
	sink     audit.Sink
}

// buildRuntime loads config and wires the full dependency graph. Close
// must be called when the command finishes.
func buildRuntime() (*runtime, error) {
	path := rootFlags.config
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if rootFlags.user != "" {
		cfg.User = rootFlags.user
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	logging.Init(parseLevel(cfg.Log.Level), cfg.Log.Format)

	records, err := memory.Open(cfg.Data.MemoryDB)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	sink, err := audit.NewJSONL(cfg.Data.AuditLog, auditMaxSize)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	q, err := queue.Open(cfg.Data.QueueDir)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("open queue: %w", err)
	}

	bridge := llm.NewOpenAIClient(cfg.LLM)

	skills := skill.NewRegistry()
	skill.RegisterMemorySkills(skills, records, cfg.User)

	desires := desire.NewStore(records)
	pipeline := desire.NewPipeline(bridge, skills, desires, cfg.Policy, sink, skills.IDs())

	loop := agent.NewLoop(
		&agent.LLMPlanner{Bridge: bridge},
		skills,
		agent.Config{Trust: skill.TrustLow},
	)
	loop.Audit = sink
	loop.Responder = bridge
	loop.Escalator = &agent.LLMEscalator{Bridge: bridge}

	dreamer := agent.NewDreamer(&agent.LLMPlanner{Bridge: bridge, Role: "dreamer"}, skills, 0.5, agent.Config{
		Trust: skill.TrustNone,
	})

	registry := graph.NewRegistry()
	flow.Register(registry)
	agent.Register(registry, loop, dreamer)
	desire.Register(registry, pipeline)

	return &runtime{
		cfg:      cfg,
		bridge:   bridge,
		skills:   skills,
		records:  records,
		desires:  desires,
		pipeline: pipeline,
		loop:     loop,
		dreamer:  dreamer,
		queue:    q,
		registry: registry,
		sink:     sink,
	}, nil
}

// Close releases the runtime's resources.
func (rt *runtime) Close() {
	if c, ok := rt.sink.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	_ = rt.records.Close()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

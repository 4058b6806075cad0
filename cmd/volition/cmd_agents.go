package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"volition/internal/agents"
	"volition/internal/desire"
	"volition/internal/graph"
	"volition/internal/logging"
	"volition/internal/queue"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Run the background agents until interrupted",
	Long: `Starts the background schedulers: the desire generator sweeping recent
memory, the dreamer, and the queue drain. Each agent ticks on its own
interval; overlapping runs of one agent are skipped. Ctrl-C stops them.`,
	Args: cobra.NoArgs,
	RunE: runAgents,
}

func runAgents(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	log := logging.New("agents")
	gen := &desire.Generator{Bridge: rt.bridge}

	sched := agents.NewScheduler()

	if iv := rt.cfg.Agents.GenerateInterval; iv > 0 {
		err := sched.Register(agents.Agent{
			ID:       "desire-generator",
			Interval: iv,
			Run: func(ctx context.Context) error {
				snippets, err := recentSnippets(ctx, rt)
				if err != nil {
					return err
				}
				proposals, err := gen.Generate(ctx, rt.cfg.User, snippets)
				if err != nil {
					return err
				}
				for _, d := range proposals {
					run, err := rt.pipeline.Run(ctx, d)
					if err != nil {
						return err
					}
					if run.Status == desire.StatusQueued {
						if _, err := rt.queue.Enqueue(rt.cfg.User, "approval", map[string]any{"desire": run.ID}); err != nil {
							return err
						}
					}
					log.Info("desire processed", "title", run.Title, "status", string(run.Status))
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
	}

	if iv := rt.cfg.Agents.DreamInterval; iv > 0 {
		err := sched.Register(agents.Agent{
			ID:       "dreamer",
			Interval: iv,
			Run: func(ctx context.Context) error {
				rc := graph.NewRunContext(rt.cfg.User, "dream", graph.ModeDreaming)
				res, err := rt.dreamer.Run(ctx, rc, "wander through recent memories", false)
				if err != nil {
					return err
				}
				log.Info("dream sequence finished", "iterations", res.Iterations)
				return nil
			},
		})
		if err != nil {
			return err
		}
	}

	if iv := rt.cfg.Agents.DrainInterval; iv > 0 {
		err := sched.Register(agents.Agent{
			ID:       "queue-drain",
			Interval: iv,
			Run: func(ctx context.Context) error {
				for _, user := range rt.queue.Users() {
					err := rt.queue.Consume(ctx, user, rt.cfg.Agents.DrainBackoff, func(ctx context.Context, it queue.Item) error {
						return drainItem(ctx, rt, user, it)
					})
					if err != nil && err != queue.ErrConsumerActive {
						return err
					}
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "running agents: %v (Ctrl-C to stop)\n", sched.IDs())
	<-ctx.Done()
	sched.Stop()
	return nil
}

// recentSnippets pulls the user's latest memories as generator fuel.
func recentSnippets(ctx context.Context, rt *runtime) ([]string, error) {
	records, err := rt.records.List(ctx, rt.cfg.User, "notes")
	if err != nil {
		return nil, err
	}
	snippets := make([]string, 0, len(records))
	for _, r := range records {
		snippets = append(snippets, string(r.Value))
		if len(snippets) >= 20 {
			break
		}
	}
	return snippets, nil
}

// drainItem handles one parked queue item. Approval reminders stay in
// the queue only while their desire is still waiting.
func drainItem(ctx context.Context, rt *runtime, user string, it queue.Item) error {
	switch it.Kind {
	case "approval":
		id, _ := it.Payload["desire"].(string)
		d, err := rt.desires.Get(ctx, user, id)
		if err != nil {
			return err
		}
		if d.Status == desire.StatusQueued {
			return fmt.Errorf("desire %s still awaiting approval", id)
		}
		return nil // resolved elsewhere, drop the reminder
	default:
		return nil
	}
}

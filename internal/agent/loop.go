// Package agent implements the bounded plan/act/observe loop that turns a
// goal into skill executions, with stuck detection and escalation. The
// same loop, parameterized by its termination strategy, also drives
// dreamer-style stochastic generators.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"volition/internal/audit"
	"volition/internal/graph"
	"volition/internal/llm"
	"volition/internal/logging"
	"volition/internal/skill"
)

// DefaultMaxIterations bounds planner invocations per run.
const DefaultMaxIterations = 5

// Config tunes one Loop.
type Config struct {
	MaxIterations int
	ScratchpadCap int
	Trust         skill.TrustLevel
}

// Loop is the ReAct-style control loop. All collaborators are injected; the
// loop owns no global state and one Loop value may serve concurrent runs
// (per-run state lives in locals and the RunContext).
type Loop struct {
	Planner   Planner
	Skills    skill.Executor
	Detector  StuckDetector
	Escalator Escalator
	Audit     audit.Sink
	Terminate Termination

	// Responder answers conversational messages directly, outside the
	// plan/act cycle. Optional; without it the bypass echoes the input.
	Responder llm.Bridge

	cfg Config
	log *slog.Logger
}

// Result is the structured terminal state of one loop run. Exactly one of
// Completed/Stuck is set; a stuck result always carries a reason and, when
// an escalator was configured and reachable, its advice.
type Result struct {
	Completed   bool
	Stuck       bool
	StuckReason string
	FinalAnswer string
	Iterations  int
	Log         []Entry
	Advice      *Advice
}

// NewLoop builds a loop with defaults filled in: completion-based
// termination, repetition stuck detection, and a discard audit sink.
func NewLoop(planner Planner, skills skill.Executor, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ScratchpadCap <= 0 {
		cfg.ScratchpadCap = DefaultScratchpadCap
	}
	if cfg.Trust == "" {
		cfg.Trust = skill.TrustLow
	}
	return &Loop{
		Planner:   planner,
		Skills:    skills,
		Detector:  RepetitionDetector{},
		Audit:     audit.Discard{},
		Terminate: CompletionTermination{},
		cfg:       cfg,
		log:       logging.New("agent"),
	}
}

// Run drives the loop for one goal. conversational short-circuits to an
// immediate final answer with zero planner calls: the caller has already
// classified the request as non-actionable.
//
// Termination precedence per iteration: completion signal, stuck detector,
// iteration bound, unhandled collaborator error. All four produce a
// structured Result; Run returns a non-nil error only for context
// cancellation.
func (l *Loop) Run(ctx context.Context, rc *graph.RunContext, goal string, conversational bool) (*Result, error) {
	log := logging.ForRun("agent", rc.UserID, rc.RunID)

	if conversational {
		log.Debug("conversational bypass, zero iterations", "goal", goal)
		return l.respond(ctx, rc, goal)
	}

	pad := NewScratchpad(l.cfg.ScratchpadCap)
	res := &Result{}

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations = iteration

		if ok, reason := l.Terminate.Continue(iteration); !ok {
			res.Completed = true
			res.FinalAnswer = reason
			break
		}

		step, err := l.Planner.Plan(ctx, goal, rc.RecentHistory(6), pad)
		if err != nil {
			// Infrastructure failure: terminal stuck state, step recorded.
			pad.Append(Entry{Iteration: iteration, Observation: fmt.Sprintf("planner error: %v", err)})
			l.finishStuck(ctx, rc, res, pad, goal, err.Error())
			return res, nil
		}

		entry := Entry{
			Iteration:   iteration,
			Thought:     step.Thought,
			Action:      step.Action,
			ActionInput: step.ActionInput,
		}

		// Precheck: the plan itself may already be the final answer.
		if step.IsFinal {
			entry.Complete = true
			pad.Append(entry)
			res.Completed = true
			res.FinalAnswer = step.FinalAnswer
			break
		}

		execRes, err := l.Skills.Execute(ctx, step.Action, step.ActionInput, l.cfg.Trust, false)
		if err != nil {
			entry.Observation = fmt.Sprintf("skill error: %v", err)
			pad.Append(entry)
			l.finishStuck(ctx, rc, res, pad, goal, err.Error())
			return res, nil
		}
		entry.Observation = formatObservation(step.Action, execRes)

		// Postcheck: completion may show up in the observation.
		if l.Terminate.Complete(nil, entry.Observation) {
			entry.Complete = true
			pad.Append(entry)
			res.Completed = true
			res.FinalAnswer = entry.Observation
			break
		}

		pad.Append(entry)

		if iteration >= stuckCheckFrom && l.Detector != nil {
			if stuck, reason := l.Detector.Check(pad); stuck {
				l.finishStuck(ctx, rc, res, pad, goal, reason)
				return res, nil
			}
		}
	}

	res.Log = pad.Entries()

	if !res.Completed && !res.Stuck {
		l.finishStuck(ctx, rc, res, pad, goal,
			fmt.Sprintf("max iterations reached (%d)", l.cfg.MaxIterations))
		return res, nil
	}

	l.Audit.Record(audit.Entry{
		Level:    "info",
		Category: "agent",
		Event:    "loop_completed",
		Actor:    rc.UserID,
		Details:  map[string]any{"goal": goal, "iterations": res.Iterations},
	})
	return res, nil
}

const responderSystemPrompt = `You are a personal assistant in conversation with your user.
Answer directly and briefly. You have no tools in this mode; if the message
actually needs action taken, say what you would do and ask the user to phrase
it as a request.`

// respond answers a conversational message with one direct model call.
// Neither the planner nor any skill is consulted on this path. The reply
// lands in the history so later turns keep the thread.
func (l *Loop) respond(ctx context.Context, rc *graph.RunContext, message string) (*Result, error) {
	if l.Responder == nil {
		return &Result{Completed: true, FinalAnswer: message, Iterations: 0}, nil
	}

	msgs := []llm.Message{{Role: "system", Content: responderSystemPrompt}}
	msgs = append(msgs, rc.RecentHistory(6)...)
	msgs = append(msgs, llm.Message{Role: "user", Content: message})

	reply, err := l.Responder.Call(ctx, "responder", msgs, llm.Options{Temperature: 0.7})
	if err != nil {
		return &Result{
			Stuck:       true,
			StuckReason: fmt.Sprintf("responder unavailable: %v", err),
			Iterations:  0,
		}, nil
	}

	rc.AppendHistory("user", message)
	rc.AppendHistory("assistant", reply.Content)
	return &Result{Completed: true, FinalAnswer: reply.Content, Iterations: 0}, nil
}

// finishStuck marks the result stuck and consults the escalation channel.
// Escalation failure is swallowed: stuck is already a terminal, reportable
// state and must not degrade into a crash.
func (l *Loop) finishStuck(ctx context.Context, rc *graph.RunContext, res *Result, pad *Scratchpad, goal, reason string) {
	res.Stuck = true
	res.Completed = false
	res.StuckReason = reason
	res.Log = pad.Entries()

	l.Audit.Record(audit.Entry{
		Level:    "warn",
		Category: "agent",
		Event:    "loop_stuck",
		Actor:    rc.UserID,
		Details:  map[string]any{"goal": goal, "reason": reason, "iterations": res.Iterations},
	})

	if l.Escalator == nil {
		return
	}
	advice, err := l.Escalator.Escalate(ctx, Escalation{
		Goal:        goal,
		StuckReason: reason,
		Scratchpad:  pad.Entries(),
		Context:     rc.Meta,
	})
	if err != nil {
		l.log.Warn("escalation channel failed", "err", err)
		return
	}
	res.Advice = advice
}

// formatObservation renders a skill result for the scratchpad.
func formatObservation(action string, res *skill.Result) string {
	if res == nil {
		return fmt.Sprintf("%s produced no result", action)
	}
	if !res.Success {
		return fmt.Sprintf("%s failed: %s", action, res.Error)
	}
	switch out := res.Output.(type) {
	case nil:
		return fmt.Sprintf("%s succeeded", action)
	case string:
		return out
	default:
		raw, err := json.Marshal(out)
		if err != nil {
			return fmt.Sprintf("%s succeeded (unrenderable output)", action)
		}
		return string(raw)
	}
}

// LLMEscalator consults a higher-tier model through the bridge.
type LLMEscalator struct {
	Bridge llm.Bridge
	Role   string // defaults to "escalator"
}

// Escalate implements Escalator. The model is asked for strict JSON; a
// malformed reply degrades to advice wrapping the raw text.
func (e *LLMEscalator) Escalate(ctx context.Context, esc Escalation) (*Advice, error) {
	role := e.Role
	if role == "" {
		role = "escalator"
	}
	payload, err := json.Marshal(esc)
	if err != nil {
		return nil, fmt.Errorf("marshal escalation: %w", err)
	}
	messages := []llm.Message{
		{Role: "system", Content: `An agent loop is stuck. Given the goal, reason, and scratchpad, reply with JSON: {"suggestions": [...], "reasoning": "...", "alternativeApproach": "..."}`},
		{Role: "user", Content: string(payload)},
	}
	reply, err := e.Bridge.Call(ctx, role, messages, llm.Options{Format: "json"})
	if err != nil {
		return nil, err
	}
	var advice Advice
	if err := json.Unmarshal([]byte(reply.Content), &advice); err != nil {
		return &Advice{Reasoning: reply.Content}, nil
	}
	return &advice, nil
}

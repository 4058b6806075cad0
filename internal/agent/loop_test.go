package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"volition/internal/graph"
	"volition/internal/llm"
	"volition/internal/skill"
)

// --- test helpers ---

// scriptedPlanner returns canned steps in order, repeating the last one.
type scriptedPlanner struct {
	steps []*PlanStep
	err   error
	calls int
}

func (p *scriptedPlanner) Plan(ctx context.Context, goal string, history []llm.Message, pad *Scratchpad) (*PlanStep, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls - 1
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	return p.steps[i], nil
}

func actStep(action string, arg any) *PlanStep {
	return &PlanStep{Thought: "try " + action, Action: action, ActionInput: map[string]any{"arg": arg}}
}

func okSkills(t *testing.T) *skill.Registry {
	t.Helper()
	reg := skill.NewRegistry()
	reg.Register(skill.Skill{
		ID:            "probe",
		RequiredTrust: skill.TrustNone,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return fmt.Sprintf("probed %v", args["arg"]), nil
		},
	})
	return reg
}

func testRC() *graph.RunContext {
	return graph.NewRunContext("user-1", "session-1", graph.ModeAssisted)
}

// --- tests ---

func TestLoop_FinalAnswerCompletes(t *testing.T) {
	planner := &scriptedPlanner{steps: []*PlanStep{
		actStep("probe", 1),
		{Thought: "done", FinalAnswer: "42", IsFinal: true},
	}}
	loop := NewLoop(planner, okSkills(t), Config{MaxIterations: 5})

	res, err := loop.Run(context.Background(), testRC(), "answer everything", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Completed || res.Stuck {
		t.Fatalf("res = %+v, want completed", res)
	}
	if res.FinalAnswer != "42" || res.Iterations != 2 {
		t.Fatalf("answer=%q iterations=%d, want 42/2", res.FinalAnswer, res.Iterations)
	}
}

func TestLoop_MaxIterationsYieldsStuck(t *testing.T) {
	// Varying inputs so the repetition detector stays quiet; only the
	// bound can end the run.
	planner := &scriptedPlanner{steps: []*PlanStep{
		actStep("probe", 1), actStep("probe", 2), actStep("probe", 3),
	}}
	// Distinct observations per call.
	skills := skill.NewRegistry()
	n := 0
	skills.Register(skill.Skill{
		ID: "probe", RequiredTrust: skill.TrustNone,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			n++
			return fmt.Sprintf("result %d", n), nil
		},
	})
	loop := NewLoop(planner, skills, Config{MaxIterations: 3})

	res, err := loop.Run(context.Background(), testRC(), "impossible goal", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Completed || !res.Stuck {
		t.Fatalf("res = %+v, want stuck", res)
	}
	if !strings.Contains(res.StuckReason, "max iterations") || !strings.Contains(res.StuckReason, "3") {
		t.Fatalf("stuckReason = %q, want max-iterations mention with the bound", res.StuckReason)
	}
	if planner.calls != 3 {
		t.Fatalf("planner called %d times, want exactly 3", planner.calls)
	}
}

func TestLoop_RepetitionDetectorFires(t *testing.T) {
	planner := &scriptedPlanner{steps: []*PlanStep{actStep("probe", "same")}}
	loop := NewLoop(planner, okSkills(t), Config{MaxIterations: 10})

	res, err := loop.Run(context.Background(), testRC(), "spin", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Stuck {
		t.Fatalf("res = %+v, want stuck via repetition", res)
	}
	if res.Iterations != 3 {
		t.Fatalf("detector fired at iteration %d, want 3", res.Iterations)
	}
	if !strings.Contains(res.StuckReason, "repeated action") {
		t.Fatalf("stuckReason = %q", res.StuckReason)
	}
}

func TestLoop_ConversationalBypassSkipsPlanner(t *testing.T) {
	planner := &scriptedPlanner{steps: []*PlanStep{actStep("probe", 1)}}
	loop := NewLoop(planner, okSkills(t), Config{MaxIterations: 5})

	res, err := loop.Run(context.Background(), testRC(), "nice weather today", true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Completed || res.Iterations != 0 {
		t.Fatalf("res = %+v, want completed with zero iterations", res)
	}
	if planner.calls != 0 {
		t.Fatalf("planner called %d times during bypass, want 0", planner.calls)
	}
}

func TestLoop_ConversationalResponderAnswers(t *testing.T) {
	planner := &scriptedPlanner{steps: []*PlanStep{actStep("probe", 1)}}
	loop := NewLoop(planner, okSkills(t), Config{MaxIterations: 5})
	loop.Responder = llm.NewStub().ScriptText("responder", "sunny indeed")

	rc := testRC()
	res, err := loop.Run(context.Background(), rc, "nice weather today", true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Completed || res.FinalAnswer != "sunny indeed" || res.Iterations != 0 {
		t.Fatalf("res = %+v, want responder answer with zero iterations", res)
	}
	if planner.calls != 0 {
		t.Fatalf("planner called %d times during bypass, want 0", planner.calls)
	}
	if len(rc.History) != 2 || rc.History[1].Content != "sunny indeed" {
		t.Fatalf("history = %+v, want user turn and assistant reply", rc.History)
	}
}

func TestLoop_PlannerErrorBecomesStuck(t *testing.T) {
	planner := &scriptedPlanner{err: errors.New("model quota exceeded")}
	loop := NewLoop(planner, okSkills(t), Config{MaxIterations: 5})

	res, err := loop.Run(context.Background(), testRC(), "goal", false)
	if err != nil {
		t.Fatalf("Run returned error, want structured stuck: %v", err)
	}
	if !res.Stuck || !strings.Contains(res.StuckReason, "quota") {
		t.Fatalf("res = %+v, want stuck carrying the error message", res)
	}
	if len(res.Log) != 1 {
		t.Fatalf("failed step not recorded in log: %v", res.Log)
	}
}

func TestLoop_ObservationMarkerCompletes(t *testing.T) {
	planner := &scriptedPlanner{steps: []*PlanStep{actStep("finisher", 1)}}
	skills := skill.NewRegistry()
	skills.Register(skill.Skill{
		ID: "finisher", RequiredTrust: skill.TrustNone,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "TASK_COMPLETE: all done", nil
		},
	})
	loop := NewLoop(planner, skills, Config{MaxIterations: 5})

	res, _ := loop.Run(context.Background(), testRC(), "goal", false)
	if !res.Completed || res.Iterations != 1 {
		t.Fatalf("res = %+v, want completion on first observation", res)
	}
}

type stubEscalator struct {
	got    *Escalation
	advice *Advice
}

func (s *stubEscalator) Escalate(ctx context.Context, e Escalation) (*Advice, error) {
	s.got = &e
	return s.advice, nil
}

func TestLoop_StuckConsultsEscalator(t *testing.T) {
	planner := &scriptedPlanner{steps: []*PlanStep{actStep("probe", "same")}}
	esc := &stubEscalator{advice: &Advice{Reasoning: "try a different skill"}}
	loop := NewLoop(planner, okSkills(t), Config{MaxIterations: 10})
	loop.Escalator = esc

	res, _ := loop.Run(context.Background(), testRC(), "spin", false)
	if res.Advice == nil || res.Advice.Reasoning != "try a different skill" {
		t.Fatalf("advice = %+v", res.Advice)
	}
	if esc.got == nil || esc.got.StuckReason == "" || len(esc.got.Scratchpad) == 0 {
		t.Fatalf("escalation payload incomplete: %+v", esc.got)
	}
}

func TestScratchpad_CapEviction(t *testing.T) {
	pad := NewScratchpad(0)
	for i := 1; i <= 25; i++ {
		pad.Append(Entry{Iteration: i})
	}
	if pad.Len() != DefaultScratchpadCap {
		t.Fatalf("len = %d, want %d", pad.Len(), DefaultScratchpadCap)
	}
	entries := pad.Entries()
	if entries[0].Iteration != 16 || entries[len(entries)-1].Iteration != 25 {
		t.Fatalf("retained window = [%d..%d], want [16..25]",
			entries[0].Iteration, entries[len(entries)-1].Iteration)
	}
}

func TestStochasticTermination_EndsSequence(t *testing.T) {
	planner := &scriptedPlanner{steps: []*PlanStep{actStep("probe", "wander")}}
	loop := NewDreamer(planner, okSkills(t), 0.5, Config{MaxIterations: 50})
	loop.Terminate = StochasticTermination{P: 0.5, Rand: rand.New(rand.NewSource(7))}

	res, err := loop.Run(context.Background(), testRC(), "dream", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Completed {
		t.Fatalf("res = %+v, want coin-flip completion", res)
	}
	if res.Iterations < 1 || res.Iterations > 50 {
		t.Fatalf("iterations = %d", res.Iterations)
	}
}

func TestParsePlan(t *testing.T) {
	cases := []struct {
		name    string
		content string
		isFinal bool
		action  string
	}{
		{"final", "Thought: done\nFinal Answer: it is 42", true, ""},
		{"action", "Thought: look\nAction: web.search\nAction Input: {\"q\": \"x\"}", false, "web.search"},
		{"garbage", "I cannot comply in the requested format.", true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			step := ParsePlan(tc.content)
			if step.IsFinal != tc.isFinal || step.Action != tc.action {
				t.Fatalf("ParsePlan(%q) = %+v", tc.content, step)
			}
		})
	}

	step := ParsePlan("Action: web.search\nAction Input: {\"q\": \"go\"}")
	if step.ActionInput["q"] != "go" {
		t.Fatalf("action input = %v", step.ActionInput)
	}
}

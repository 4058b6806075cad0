package desire

import (
	"context"
	"strings"
	"testing"

	"volition/internal/audit"
	"volition/internal/graph"
	"volition/internal/llm"
	"volition/internal/memory"
	"volition/internal/skill"
)

const planJSON = `{"operatorGoal": "tidy notes",
 "steps": [{"description": "gather", "skill": "note"}, {"description": "file", "skill": "note"}],
 "estimatedRisk": "low"}`

const approveJSON = `{"approved": true, "score": 0.9, "reasoning": "fine"}`

func noteSkills(t *testing.T) *skill.Registry {
	t.Helper()
	reg := skill.NewRegistry()
	reg.Register(skill.Skill{
		ID:            "note",
		RequiredTrust: skill.TrustLow,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "noted", nil
		},
	})
	return reg
}

func autonomousPolicy() Policy {
	p := DefaultPolicy()
	p.Mode = graph.ModeAutonomous
	return p
}

func testDesire() *Desire {
	return &Desire{
		ID: "d-1", User: "ada", Title: "tidy notes", Strength: 0.9,
		RequiredTrust: skill.TrustLow, Status: StatusProposed,
	}
}

func TestPipeline_AutoApprovedRunsToCompletion(t *testing.T) {
	stub := llm.NewStub().
		ScriptText("desire-planner", planJSON).
		ScriptText("alignment-reviewer", approveJSON).
		ScriptText("safety-reviewer", approveJSON).
		ScriptText("outcome-reviewer", `{"verdict": "completed", "successScore": 1.0, "reasoning": "done"}`)

	store := NewStore(memory.NewMemStore())
	p := NewPipeline(stub, noteSkills(t), store, autonomousPolicy(), audit.Discard{}, []string{"note"})

	d, err := p.Run(context.Background(), testDesire())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", d.Status)
	}
	if d.Review == nil || d.Review.Verdict != VerdictApprove || !d.Review.AutoApproved {
		t.Fatalf("review = %+v, want auto-approved approve", d.Review)
	}
	if d.Execution == nil || d.Execution.Status != ExecSuccess || d.Execution.StepsCompleted != 2 {
		t.Fatalf("execution = %+v, want 2 successful steps", d.Execution)
	}
	if d.Execution.CompletedAt == nil {
		t.Fatal("execution missing completion timestamp")
	}

	stored, err := store.Get(context.Background(), "ada", "d-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusCompleted || len(stored.Execution.StepResults) != 2 {
		t.Fatalf("persisted copy = %+v, want completed with 2 step results", stored)
	}
}

// Each step result must hit the store before the next step runs, so a
// crash between steps cannot lose the record of an applied side effect.
func TestPipeline_StepResultsDurableMidRun(t *testing.T) {
	stub := llm.NewStub().
		ScriptText("desire-planner", planJSON).
		ScriptText("alignment-reviewer", approveJSON).
		ScriptText("safety-reviewer", approveJSON).
		ScriptText("outcome-reviewer", `{"verdict": "completed", "successScore": 1.0, "reasoning": "done"}`)

	store := NewStore(memory.NewMemStore())
	reg := skill.NewRegistry()
	var persistedBeforeSecond int
	reg.Register(skill.Skill{
		ID:            "note",
		RequiredTrust: skill.TrustLow,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if stored, err := store.Get(ctx, "ada", "d-1"); err == nil && stored.Execution != nil {
				persistedBeforeSecond = len(stored.Execution.StepResults)
			}
			return "noted", nil
		},
	})

	p := NewPipeline(stub, reg, store, autonomousPolicy(), audit.Discard{}, []string{"note"})
	if _, err := p.Run(context.Background(), testDesire()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if persistedBeforeSecond != 1 {
		t.Fatalf("store held %d step results when step 2 ran, want 1", persistedBeforeSecond)
	}
}

func TestPipeline_AssistedApprovalQueues(t *testing.T) {
	stub := llm.NewStub().
		ScriptText("desire-planner", planJSON).
		ScriptText("alignment-reviewer", approveJSON).
		ScriptText("safety-reviewer", approveJSON)

	store := NewStore(memory.NewMemStore())
	p := NewPipeline(stub, noteSkills(t), store, DefaultPolicy(), audit.Discard{}, nil)

	d, err := p.Run(context.Background(), testDesire())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Status != StatusQueued {
		t.Fatalf("status = %s, want queued for human approval", d.Status)
	}
	if d.Execution != nil {
		t.Fatal("queued desire must not have executed")
	}
	if stub.CallCount("outcome-reviewer") != 0 {
		t.Fatal("outcome reviewer consulted before execution")
	}
}

func TestPipeline_PlannerFailureRejects(t *testing.T) {
	stub := llm.NewStub() // every role unavailable
	store := NewStore(memory.NewMemStore())
	p := NewPipeline(stub, noteSkills(t), store, autonomousPolicy(), audit.Discard{}, nil)

	d, err := p.Run(context.Background(), testDesire())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Status != StatusRejected {
		t.Fatalf("status = %s, want rejected", d.Status)
	}
	if !strings.Contains(d.Review.Reasoning, "no plan") {
		t.Fatalf("reasoning = %q, want no-plan diagnostic", d.Review.Reasoning)
	}
}

func TestPipeline_ReviseThenApprove(t *testing.T) {
	weak := `{"approved": true, "score": 0.5, "reasoning": "thin"}`
	stub := llm.NewStub().
		ScriptText("desire-planner", planJSON, planJSON).
		ScriptText("alignment-reviewer", weak, approveJSON).
		ScriptText("safety-reviewer", weak, approveJSON)

	store := NewStore(memory.NewMemStore())
	p := NewPipeline(stub, noteSkills(t), store, DefaultPolicy(), audit.Discard{}, nil)

	d, err := p.Run(context.Background(), testDesire())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Status != StatusQueued {
		t.Fatalf("status = %s, want queued after revision pass", d.Status)
	}
	if got := stub.CallCount("desire-planner"); got != 2 {
		t.Fatalf("planner called %d times, want 2", got)
	}

	// The revision pass feeds the prior verdict back to the planner.
	var second llm.StubCall
	for _, c := range stub.Calls {
		if c.Role == "desire-planner" {
			second = c
		}
	}
	found := false
	for _, m := range second.Messages {
		if strings.Contains(m.Content, "revision") {
			found = true
		}
	}
	if !found {
		t.Fatal("second planning prompt does not mention the revision")
	}
}

func TestPipeline_RevisionBudgetExhaustedRejects(t *testing.T) {
	weak := `{"approved": true, "score": 0.5, "reasoning": "thin"}`
	stub := llm.NewStub().
		ScriptText("desire-planner", planJSON).
		ScriptText("alignment-reviewer", weak).
		ScriptText("safety-reviewer", weak)

	policy := DefaultPolicy()
	policy.MaxRevisions = 1
	p := NewPipeline(stub, noteSkills(t), NewStore(memory.NewMemStore()), policy, audit.Discard{}, nil)

	d, err := p.Run(context.Background(), testDesire())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Status != StatusRejected {
		t.Fatalf("status = %s, want rejected once revisions run out", d.Status)
	}
	if !strings.Contains(d.Review.Reasoning, "revision budget exhausted") {
		t.Fatalf("reasoning = %q, want exhausted-budget note", d.Review.Reasoning)
	}
	if got := stub.CallCount("desire-planner"); got != 2 {
		t.Fatalf("planner called %d times, want 2 (original plus one revision)", got)
	}
}

func TestPipeline_StepFailureStopsExecution(t *testing.T) {
	// First step succeeds through the registry, second fails in-band by
	// pointing at a skill nobody registered.
	twoSkills := `{"operatorGoal": "g",
 "steps": [{"description": "a", "skill": "note"}, {"description": "b", "skill": "missing"}],
 "estimatedRisk": "low"}`
	stub := llm.NewStub().
		ScriptText("desire-planner", twoSkills).
		ScriptText("alignment-reviewer", approveJSON).
		ScriptText("safety-reviewer", approveJSON).
		ScriptText("outcome-reviewer", `{"verdict": "retry", "successScore": 0.2, "reasoning": "partial"}`)

	reg := skill.NewRegistry()
	calls := 0
	reg.Register(skill.Skill{
		ID:            "note",
		RequiredTrust: skill.TrustLow,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			calls++
			return "", nil
		},
	})

	p := NewPipeline(stub, reg, NewStore(memory.NewMemStore()), autonomousPolicy(), audit.Discard{}, nil)
	d, err := p.Run(context.Background(), testDesire())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Execution.Status != ExecFailure || d.Execution.StepsCompleted != 1 {
		t.Fatalf("execution = %+v, want failure after 1 completed step", d.Execution)
	}
	if len(d.Execution.StepResults) != 2 || d.Execution.StepResults[1].Success {
		t.Fatalf("step results = %+v, want second recorded as failed", d.Execution.StepResults)
	}
	if d.Status != StatusProposed {
		t.Fatalf("status = %s, want proposed (retry resets the cycle)", d.Status)
	}
	if calls != 1 {
		t.Fatalf("registered skill ran %d times, want 1", calls)
	}
}

func TestPipeline_UnparseableOutcomeEscalates(t *testing.T) {
	stub := llm.NewStub().
		ScriptText("desire-planner", planJSON).
		ScriptText("alignment-reviewer", approveJSON).
		ScriptText("safety-reviewer", approveJSON).
		ScriptText("outcome-reviewer", "I feel great about this one")

	p := NewPipeline(stub, noteSkills(t), NewStore(memory.NewMemStore()), autonomousPolicy(), audit.Discard{}, nil)
	d, err := p.Run(context.Background(), testDesire())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Outcome == nil || d.Outcome.Verdict != OutcomeEscalate || !d.Outcome.NotifyUser {
		t.Fatalf("outcome = %+v, want escalate with user notification", d.Outcome)
	}
	if d.Status != StatusQueued {
		t.Fatalf("status = %s, want queued for human attention", d.Status)
	}
}

func TestGenerator_ProposesFromMemory(t *testing.T) {
	stub := llm.NewStub().ScriptText("desire-generator",
		`{"desires": [
			{"title": "water plants", "description": "they look dry", "reason": "noted twice", "strength": 0.7, "requiredTrust": "low"},
			{"title": "", "description": "no title, dropped"},
			{"title": "sort inbox", "strength": 1.4}
		]}`)

	g := &Generator{Bridge: stub}
	out, err := g.Generate(context.Background(), "ada", []string{"the plants look dry"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d desires, want 2 (untitled dropped)", len(out))
	}
	if out[0].ID == "" || out[0].User != "ada" || out[0].Status != StatusProposed {
		t.Fatalf("first desire = %+v, want proposed with id and user", out[0])
	}
	if out[1].Strength != 1.0 {
		t.Fatalf("strength = %v, want clamped to 1.0", out[1].Strength)
	}
}

func TestGenerator_UnparseableReplyYieldsNothing(t *testing.T) {
	stub := llm.NewStub().ScriptText("desire-generator", "maybe later")
	g := &Generator{Bridge: stub}
	out, err := g.Generate(context.Background(), "ada", nil)
	if err != nil || out != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", out, err)
	}
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"volition/internal/llm"
)

// PlanStep is one planner decision: either the next action to take, or a
// final answer that terminates the loop.
type PlanStep struct {
	Thought     string
	Action      string
	ActionInput map[string]any
	FinalAnswer string
	IsFinal     bool
}

// Planner produces the next step given the goal, recent conversation, and
// the scratchpad of prior steps.
type Planner interface {
	Plan(ctx context.Context, goal string, history []llm.Message, pad *Scratchpad) (*PlanStep, error)
}

// LLMPlanner plans through the model bridge using the ReAct text format.
type LLMPlanner struct {
	Bridge llm.Bridge
	Role   string // bridge role, defaults to "planner"
	Skills []string
}

const plannerSystemPrompt = `You decide the next step toward the user's goal.
Reply in exactly one of two forms.

To act:
Thought: <why this step>
Action: <one skill id from the list>
Action Input: <JSON object of arguments>

To finish:
Thought: <why the goal is met>
Final Answer: <the answer for the user>`

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, goal string, history []llm.Message, pad *Scratchpad) (*PlanStep, error) {
	role := p.Role
	if role == "" {
		role = "planner"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	if len(p.Skills) > 0 {
		fmt.Fprintf(&b, "Available skills: %s\n\n", strings.Join(p.Skills, ", "))
	}
	fmt.Fprintf(&b, "Scratchpad so far:\n%s", pad.Render())

	messages := []llm.Message{{Role: "system", Content: plannerSystemPrompt}}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: b.String()})

	reply, err := p.Bridge.Call(ctx, role, messages, llm.Options{Temperature: 0.2})
	if err != nil {
		return nil, err
	}
	return ParsePlan(reply.Content), nil
}

// ParsePlan extracts a PlanStep from ReAct-formatted planner text. Any
// text that carries a Final Answer marker terminates; otherwise the first
// Action/Action Input pair is used. Unparseable text degrades to a final
// answer carrying the raw content, never an error: garbage from the model
// is the model's answer.
func ParsePlan(content string) *PlanStep {
	step := &PlanStep{}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Thought:"):
			if step.Thought == "" {
				step.Thought = strings.TrimSpace(strings.TrimPrefix(trimmed, "Thought:"))
			}
		case strings.HasPrefix(trimmed, "Final Answer:"):
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "Final Answer:"))
			// The answer may continue on following lines; grab the tail.
			idx := strings.Index(content, "Final Answer:")
			tail := strings.TrimSpace(content[idx+len("Final Answer:"):])
			if tail != "" {
				rest = tail
			}
			step.FinalAnswer = rest
			step.IsFinal = true
			return step
		case strings.HasPrefix(trimmed, "Action:") && step.Action == "":
			step.Action = strings.TrimSpace(strings.TrimPrefix(trimmed, "Action:"))
		case strings.HasPrefix(trimmed, "Action Input:") && step.ActionInput == nil:
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, "Action Input:"))
			var args map[string]any
			if err := json.Unmarshal([]byte(raw), &args); err == nil {
				step.ActionInput = args
			} else {
				step.ActionInput = map[string]any{"input": raw}
			}
		}
	}

	if step.Action == "" {
		step.FinalAnswer = strings.TrimSpace(content)
		step.IsFinal = true
	}
	return step
}

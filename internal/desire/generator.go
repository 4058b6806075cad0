package desire

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"volition/internal/llm"
	"volition/internal/skill"
)

// Generator proposes new desires from recent memory snippets. Generation
// is the entry of the lifecycle; everything it emits starts at
// StatusProposed and earns execution through the pipeline.
type Generator struct {
	Bridge llm.Bridge
	Max    int // most desires per pass, default 3
}

const generateSystemPrompt = `You propose goals a personal assistant could pursue autonomously for its user.
Given recent memory snippets, reply with JSON only:
{"desires": [{"title": "...", "description": "...", "reason": "...", "strength": 0.0-1.0, "requiredTrust": "none|low|medium|high|full"}]}
Propose only goals clearly in the user's interest. Fewer is better.`

// Generate proposes up to Max desires for the user. An unparseable model
// reply yields no desires and no error: generation is opportunistic.
func (g *Generator) Generate(ctx context.Context, user string, snippets []string) ([]*Desire, error) {
	max := g.Max
	if max <= 0 {
		max = 3
	}

	reply, err := g.Bridge.Call(ctx, "desire-generator", []llm.Message{
		{Role: "system", Content: generateSystemPrompt},
		{Role: "user", Content: "Recent memory:\n" + strings.Join(snippets, "\n")},
	}, llm.Options{Format: "json", Temperature: 0.8})
	if err != nil {
		return nil, fmt.Errorf("desire generation: %w", err)
	}

	var parsed struct {
		Desires []struct {
			Title         string  `json:"title"`
			Description   string  `json:"description"`
			Reason        string  `json:"reason"`
			Strength      float64 `json:"strength"`
			RequiredTrust string  `json:"requiredTrust"`
		} `json:"desires"`
	}
	if err := json.Unmarshal([]byte(reply.Content), &parsed); err != nil {
		return nil, nil
	}

	now := time.Now().UTC()
	var out []*Desire
	for _, cand := range parsed.Desires {
		if cand.Title == "" || len(out) >= max {
			continue
		}
		out = append(out, &Desire{
			ID:            uuid.NewString(),
			User:          user,
			Title:         cand.Title,
			Description:   cand.Description,
			Reason:        cand.Reason,
			Strength:      clamp01(cand.Strength),
			RequiredTrust: skill.TrustLevel(cand.RequiredTrust),
			Status:        StatusProposed,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out, nil
}

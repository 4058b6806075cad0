package skill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"volition/internal/memory"
)

// RegisterMemorySkills wires the record store into the registry as skills
// the planner can reach: remember, recall, and forget, all scoped to one
// user. Remember requires approval outside autonomous execution because
// it writes durable state.
func RegisterMemorySkills(reg *Registry, store memory.Store, user string) {
	reg.Register(Skill{
		ID:            "memory.remember",
		Description:   "Store a fact under a category and key for later recall.",
		RequiredTrust: TrustLow,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			category, _ := args["category"].(string)
			key, _ := args["key"].(string)
			value, _ := args["value"].(string)
			if category == "" {
				category = "notes"
			}
			if key == "" {
				key = fmt.Sprintf("note-%d", time.Now().UnixNano())
			}
			if strings.TrimSpace(value) == "" {
				return nil, errors.New("memory.remember: value required")
			}
			if err := memory.PutJSON(ctx, store, user, category, key, value); err != nil {
				return nil, err
			}
			return fmt.Sprintf("stored %s/%s", category, key), nil
		},
	})

	reg.Register(Skill{
		ID:            "memory.recall",
		Description:   "Search stored memories for a query string.",
		RequiredTrust: TrustNone,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			category, _ := args["category"].(string)
			if strings.TrimSpace(query) == "" {
				return nil, errors.New("memory.recall: query required")
			}
			records, err := store.Search(ctx, user, category, query, 10)
			if err != nil {
				return nil, err
			}
			if len(records) == 0 {
				return "nothing remembered about that", nil
			}
			lines := make([]string, 0, len(records))
			for _, r := range records {
				lines = append(lines, fmt.Sprintf("%s/%s: %s", r.Category, r.Key, string(r.Value)))
			}
			return strings.Join(lines, "\n"), nil
		},
	})

	reg.Register(Skill{
		ID:               "memory.forget",
		Description:      "Delete one stored memory by category and key.",
		RequiredTrust:    TrustMedium,
		RequiresApproval: true,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			category, _ := args["category"].(string)
			key, _ := args["key"].(string)
			if category == "" || key == "" {
				return nil, errors.New("memory.forget: category and key required")
			}
			if err := store.Delete(ctx, user, category, key); err != nil {
				if errors.Is(err, memory.ErrNotFound) {
					return fmt.Sprintf("no memory at %s/%s", category, key), nil
				}
				return nil, err
			}
			return fmt.Sprintf("forgot %s/%s", category, key), nil
		},
	})
}

package skill

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegistry_TrustGate(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Skill{
		ID:            "fs.write",
		RequiredTrust: TrustHigh,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "wrote", nil
		},
	})

	cases := []struct {
		trust TrustLevel
		want  bool
	}{
		{TrustNone, false},
		{TrustLow, false},
		{TrustMedium, false},
		{TrustHigh, true},
		{TrustFull, true},
	}
	for _, tc := range cases {
		res, err := reg.Execute(context.Background(), "fs.write", nil, tc.trust, true)
		if err != nil {
			t.Fatalf("trust %s: %v", tc.trust, err)
		}
		if res.Success != tc.want {
			t.Errorf("trust %s: success=%v, want %v (%s)", tc.trust, res.Success, tc.want, res.Error)
		}
	}
}

func TestRegistry_UnknownSkillFailsClosed(t *testing.T) {
	reg := NewRegistry()
	res, err := reg.Execute(context.Background(), "ghost", nil, TrustFull, true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "unknown skill") {
		t.Fatalf("res = %+v, want in-band unknown-skill denial", res)
	}
}

func TestRegistry_ApprovalGate(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Skill{
		ID:               "mail.send",
		RequiredTrust:    TrustLow,
		RequiresApproval: true,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "sent", nil
		},
	})

	res, _ := reg.Execute(context.Background(), "mail.send", nil, TrustFull, false)
	if res.Success {
		t.Fatal("approval-gated skill ran without approval")
	}
	res, _ = reg.Execute(context.Background(), "mail.send", nil, TrustFull, true)
	if !res.Success || res.Output != "sent" {
		t.Fatalf("approved run = %+v", res)
	}
}

func TestRegistry_HandlerErrorIsInfrastructure(t *testing.T) {
	sentinel := errors.New("disk on fire")
	reg := NewRegistry()
	reg.Register(Skill{
		ID:            "broken",
		RequiredTrust: TrustNone,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, sentinel
		},
	})

	_, err := reg.Execute(context.Background(), "broken", nil, TrustFull, true)
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped handler error", err)
	}
}

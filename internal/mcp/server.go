// Package mcp exposes the runtime over the Model Context Protocol so
// editor agents and other MCP clients can chat, run desires, and inspect
// the queue through stdio.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"volition/internal/agent"
	"volition/internal/desire"
	"volition/internal/graph"
	"volition/internal/logging"
	"volition/internal/queue"
	"volition/internal/skill"
)

// Runtime is everything the tools need, injected by the caller.
type Runtime struct {
	User     string
	Mode     graph.Mode
	Loop     *agent.Loop
	Pipeline *desire.Pipeline
	Desires  desire.Store
	Queue    *queue.RetryQueue
}

// Server wraps the MCP SDK server around a Runtime.
type Server struct {
	MCPServer *sdkmcp.Server
	rt        Runtime
}

// NewServer creates the server and registers its tools.
func NewServer(rt Runtime) *Server {
	s := &Server{rt: rt}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "volition", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "chat",
		Description: "Send one message through the agent loop. Conversational messages answer directly; goals run plan/act/observe iterations.",
	}, s.handleChat)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "desire_run",
		Description: "Run one desire through the agency pipeline: plan, dual review, verdict, and (if approved) execution with outcome review.",
	}, s.handleDesireRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "desire_list",
		Description: "List the user's desires, strongest first, with lifecycle status and last verdict.",
	}, s.handleDesireList)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "queue_status",
		Description: "Inspect the parked-work queue: pending items per user with attempt counts.",
	}, s.handleQueueStatus)
}

// --- Tool input/output types ---

type chatInput struct {
	Message        string `json:"message" jsonschema:"the user message or goal"`
	Conversational bool   `json:"conversational,omitempty" jsonschema:"true for plain conversation that needs no planning"`
}

type chatOutput struct {
	Response    string `json:"response"`
	Completed   bool   `json:"completed"`
	Stuck       bool   `json:"stuck,omitempty"`
	StuckReason string `json:"stuck_reason,omitempty"`
	Iterations  int    `json:"iterations"`
}

type desireRunInput struct {
	Title         string  `json:"title" jsonschema:"short name of the desire"`
	Description   string  `json:"description,omitempty" jsonschema:"what fulfilling it would look like"`
	Reason        string  `json:"reason,omitempty" jsonschema:"why the agent holds this desire"`
	Strength      float64 `json:"strength,omitempty" jsonschema:"0..1, defaults to 0.5"`
	RequiredTrust string  `json:"required_trust,omitempty" jsonschema:"none, low, medium, high, or full (default low)"`
}

type desireRunOutput struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Verdict   string  `json:"verdict,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`
	Combined  float64 `json:"combined_score,omitempty"`
	Outcome   string  `json:"outcome,omitempty"`
}

type desireListInput struct{}

type desireSummary struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Strength float64 `json:"strength"`
	Status   string  `json:"status"`
	Verdict  string  `json:"verdict,omitempty"`
}

type desireListOutput struct {
	Desires []desireSummary `json:"desires"`
}

type queueStatusInput struct{}

type queueItem struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

type queueUserStatus struct {
	User    string      `json:"user"`
	Pending int         `json:"pending"`
	Items   []queueItem `json:"items"`
}

type queueStatusOutput struct {
	Users []queueUserStatus `json:"users"`
}

// --- Tool handlers ---

func (s *Server) handleChat(ctx context.Context, _ *sdkmcp.CallToolRequest, input chatInput) (*sdkmcp.CallToolResult, chatOutput, error) {
	if input.Message == "" {
		return nil, chatOutput{}, fmt.Errorf("message is required")
	}
	if s.rt.Loop == nil {
		return nil, chatOutput{}, fmt.Errorf("agent loop not configured")
	}

	rc := graph.NewRunContext(s.rt.User, "mcp", s.rt.Mode)
	res, err := s.rt.Loop.Run(ctx, rc, input.Message, input.Conversational)
	if err != nil {
		return nil, chatOutput{}, fmt.Errorf("chat: %w", err)
	}

	return nil, chatOutput{
		Response:    res.FinalAnswer,
		Completed:   res.Completed,
		Stuck:       res.Stuck,
		StuckReason: res.StuckReason,
		Iterations:  res.Iterations,
	}, nil
}

func (s *Server) handleDesireRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input desireRunInput) (*sdkmcp.CallToolResult, desireRunOutput, error) {
	if input.Title == "" {
		return nil, desireRunOutput{}, fmt.Errorf("title is required")
	}
	if s.rt.Pipeline == nil {
		return nil, desireRunOutput{}, fmt.Errorf("desire pipeline not configured")
	}

	strength := input.Strength
	if strength <= 0 {
		strength = 0.5
	}
	trust := skill.TrustLevel(input.RequiredTrust)
	if input.RequiredTrust == "" {
		trust = skill.TrustLow
	}

	now := time.Now().UTC()
	d := &desire.Desire{
		ID:            uuid.NewString(),
		User:          s.rt.User,
		Title:         input.Title,
		Description:   input.Description,
		Reason:        input.Reason,
		Strength:      strength,
		RequiredTrust: trust,
		Status:        desire.StatusProposed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	d, err := s.rt.Pipeline.Run(ctx, d)
	if err != nil {
		return nil, desireRunOutput{}, fmt.Errorf("desire_run: %w", err)
	}

	out := desireRunOutput{ID: d.ID, Status: string(d.Status)}
	if d.Review != nil {
		out.Verdict = string(d.Review.Verdict)
		out.Reasoning = d.Review.Reasoning
		out.Combined = d.Review.CombinedScore
	}
	if d.Outcome != nil {
		out.Outcome = string(d.Outcome.Verdict)
	}
	return nil, out, nil
}

func (s *Server) handleDesireList(ctx context.Context, _ *sdkmcp.CallToolRequest, _ desireListInput) (*sdkmcp.CallToolResult, desireListOutput, error) {
	if s.rt.Desires == nil {
		return nil, desireListOutput{}, fmt.Errorf("desire store not configured")
	}
	list, err := s.rt.Desires.List(ctx, s.rt.User)
	if err != nil {
		return nil, desireListOutput{}, fmt.Errorf("desire_list: %w", err)
	}

	out := desireListOutput{Desires: make([]desireSummary, 0, len(list))}
	for _, d := range list {
		sum := desireSummary{
			ID:       d.ID,
			Title:    d.Title,
			Strength: d.Strength,
			Status:   string(d.Status),
		}
		if d.Review != nil {
			sum.Verdict = string(d.Review.Verdict)
		}
		out.Desires = append(out.Desires, sum)
	}
	return nil, out, nil
}

func (s *Server) handleQueueStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, _ queueStatusInput) (*sdkmcp.CallToolResult, queueStatusOutput, error) {
	if s.rt.Queue == nil {
		return nil, queueStatusOutput{}, fmt.Errorf("queue not configured")
	}

	out := queueStatusOutput{Users: []queueUserStatus{}}
	for _, user := range s.rt.Queue.Users() {
		items := s.rt.Queue.Items(user)
		status := queueUserStatus{User: user, Pending: len(items), Items: make([]queueItem, 0, len(items))}
		for _, it := range items {
			status.Items = append(status.Items, queueItem{
				ID:        it.ID,
				Kind:      it.Kind,
				Attempts:  it.Attempts,
				LastError: it.LastError,
			})
		}
		out.Users = append(out.Users, status)
	}
	return nil, out, nil
}

// Run serves MCP over stdio until ctx is cancelled. The parent watchdog
// shuts the server down when the spawning client dies.
func (s *Server) Run(ctx context.Context) error {
	log := logging.New("mcp")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	WatchParent(ctx, cancel)

	log.Info("mcp server starting", "user", s.rt.User)
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

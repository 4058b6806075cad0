package llm

import (
	"context"
	"sync"
)

// Stub is a scripted Bridge for tests and offline runs. Replies are served
// per role in order; when a role's script is exhausted the last reply
// repeats. A nil script entry yields ErrUnavailable.
type Stub struct {
	mu      sync.Mutex
	scripts map[string][]*Reply
	cursor  map[string]int
	Calls   []StubCall
}

// StubCall records one invocation for assertions.
type StubCall struct {
	Role     string
	Messages []Message
	Opts     Options
}

// NewStub creates an empty scripted bridge.
func NewStub() *Stub {
	return &Stub{
		scripts: make(map[string][]*Reply),
		cursor:  make(map[string]int),
	}
}

// Script appends replies for a role. Append nil to script a failure.
func (s *Stub) Script(role string, replies ...*Reply) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[role] = append(s.scripts[role], replies...)
	return s
}

// ScriptText appends plain-content replies for a role.
func (s *Stub) ScriptText(role string, contents ...string) *Stub {
	for _, c := range contents {
		s.Script(role, &Reply{Content: c, Model: "stub", Provider: "stub"})
	}
	return s
}

// CallCount returns how many calls were made for a role.
func (s *Stub) CallCount(role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c.Role == role {
			n++
		}
	}
	return n
}

// Call implements Bridge.
func (s *Stub) Call(ctx context.Context, role string, messages []Message, opts Options) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, StubCall{Role: role, Messages: messages, Opts: opts})

	script := s.scripts[role]
	if len(script) == 0 {
		return nil, ErrUnavailable
	}
	i := s.cursor[role]
	if i >= len(script) {
		i = len(script) - 1
	} else {
		s.cursor[role] = i + 1
	}
	if script[i] == nil {
		return nil, ErrUnavailable
	}
	return script[i], nil
}

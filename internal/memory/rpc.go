package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned when a memory RPC exceeds its budget. Callers
// treat it as an infrastructure failure.
var ErrTimeout = errors.New("memory: rpc timeout")

// Op names a store operation carried over the wire.
type Op string

const (
	OpPut    Op = "put"
	OpGet    Op = "get"
	OpList   Op = "list"
	OpSearch Op = "search"
	OpDelete Op = "delete"
)

// Request is one memory operation with a correlation id.
type Request struct {
	ID       string `json:"id"`
	Op       Op     `json:"op"`
	User     string `json:"user"`
	Category string `json:"category"`
	Key      string `json:"key,omitempty"`
	Query    string `json:"query,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Value    []byte `json:"value,omitempty"`
}

// Response answers the request with the matching correlation id.
type Response struct {
	ID      string   `json:"id"`
	Record  *Record  `json:"record,omitempty"`
	Records []Record `json:"records,omitempty"`
	Err     string   `json:"err,omitempty"`
}

// RPCClient implements Store over a request/response message substrate:
// any pair of channels works (in-process worker, actor mailbox, task
// queue bridge). Responses are matched to requests by correlation id;
// every call carries a timeout and honors cancellation.
type RPCClient struct {
	requests chan<- Request
	timeout  time.Duration

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool
}

// NewRPCClient wires a client over the given channels and starts the
// response dispatcher. The dispatcher exits when responses is closed.
func NewRPCClient(requests chan<- Request, responses <-chan Response, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &RPCClient{
		requests: requests,
		timeout:  timeout,
		pending:  make(map[string]chan Response),
	}
	go c.dispatch(responses)
	return c
}

func (c *RPCClient) dispatch(responses <-chan Response) {
	for resp := range responses {
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *RPCClient) call(ctx context.Context, req Request) (*Response, error) {
	req.ID = uuid.NewString()

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("memory: rpc client closed")
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case c.requests <- req:
	case <-ctx.Done():
		c.drop(req.ID)
		return nil, fmt.Errorf("%w: send %s", ErrTimeout, req.Op)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.New("memory: rpc client closed")
		}
		if resp.Err != "" {
			if resp.Err == ErrNotFound.Error() {
				return nil, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, req.User, req.Category, req.Key)
			}
			return nil, errors.New(resp.Err)
		}
		return &resp, nil
	case <-ctx.Done():
		c.drop(req.ID)
		return nil, fmt.Errorf("%w: %s %s/%s", ErrTimeout, req.Op, req.User, req.Category)
	}
}

func (c *RPCClient) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Put implements Store.
func (c *RPCClient) Put(ctx context.Context, user, category, key string, value []byte) error {
	_, err := c.call(ctx, Request{Op: OpPut, User: user, Category: category, Key: key, Value: value})
	return err
}

// Get implements Store.
func (c *RPCClient) Get(ctx context.Context, user, category, key string) (*Record, error) {
	resp, err := c.call(ctx, Request{Op: OpGet, User: user, Category: category, Key: key})
	if err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// List implements Store.
func (c *RPCClient) List(ctx context.Context, user, category string) ([]Record, error) {
	resp, err := c.call(ctx, Request{Op: OpList, User: user, Category: category})
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Search implements Store.
func (c *RPCClient) Search(ctx context.Context, user, category, query string, limit int) ([]Record, error) {
	resp, err := c.call(ctx, Request{Op: OpSearch, User: user, Category: category, Query: query, Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Delete implements Store.
func (c *RPCClient) Delete(ctx context.Context, user, category, key string) error {
	_, err := c.call(ctx, Request{Op: OpDelete, User: user, Category: category, Key: key})
	return err
}

// Serve bridges a backing Store over the channel pair until ctx ends or
// requests is closed. One Serve goroutine per substrate; operations run
// sequentially, matching the single-consumer worker model.
func Serve(ctx context.Context, store Store, requests <-chan Request, responses chan<- Response) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			responses <- serveOne(ctx, store, req)
		}
	}
}

func serveOne(ctx context.Context, store Store, req Request) Response {
	resp := Response{ID: req.ID}
	var err error
	switch req.Op {
	case OpPut:
		err = store.Put(ctx, req.User, req.Category, req.Key, req.Value)
	case OpGet:
		resp.Record, err = store.Get(ctx, req.User, req.Category, req.Key)
	case OpList:
		resp.Records, err = store.List(ctx, req.User, req.Category)
	case OpSearch:
		resp.Records, err = store.Search(ctx, req.User, req.Category, req.Query, req.Limit)
	case OpDelete:
		err = store.Delete(ctx, req.User, req.Category, req.Key)
	default:
		err = fmt.Errorf("unknown op %q", req.Op)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			resp.Err = ErrNotFound.Error()
		} else {
			resp.Err = err.Error()
		}
	}
	return resp
}

// PutJSON marshals value and stores it. Convenience shared by callers
// that keep structured records.
func PutJSON(ctx context.Context, s Store, user, category, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s/%s: %w", user, category, key, err)
	}
	return s.Put(ctx, user, category, key, raw)
}

// GetJSON loads and unmarshals a record into out.
func GetJSON(ctx context.Context, s Store, user, category, key string, out any) error {
	rec, err := s.Get(ctx, user, category, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(rec.Value, out); err != nil {
		return fmt.Errorf("unmarshal %s/%s/%s: %w", user, category, key, err)
	}
	return nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RoleRoute selects the model (and optionally a different endpoint/key)
// for one caller role.
type RoleRoute struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// ClientConfig configures an OpenAIClient.
type ClientConfig struct {
	BaseURL      string               `yaml:"base_url"`
	APIKey       string               `yaml:"api_key"`
	DefaultModel string               `yaml:"default_model"`
	Provider     string               `yaml:"provider"`
	Timeout      time.Duration        `yaml:"timeout"`
	Roles        map[string]RoleRoute `yaml:"roles,omitempty"`
}

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint
// (OpenAI, OpenRouter, llama.cpp, ollama). One client serves all roles;
// per-role routes override model, endpoint, and key.
type OpenAIClient struct {
	cfg    ClientConfig
	client *http.Client
}

// NewOpenAIClient builds a client. Timeout defaults to 120s when unset.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Call implements Bridge over HTTP. Non-2xx statuses and transport errors
// wrap ErrUnavailable so callers can classify them as infrastructure
// failures without inspecting text.
func (c *OpenAIClient) Call(ctx context.Context, role string, messages []Message, opts Options) (*Reply, error) {
	route := c.cfg.Roles[role]
	model := route.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}
	baseURL := route.BaseURL
	if baseURL == "" {
		baseURL = c.cfg.BaseURL
	}
	apiKey := route.APIKey
	if apiKey == "" {
		apiKey = c.cfg.APIKey
	}

	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.Format == "json" {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: role %s: %v", ErrUnavailable, role, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: role %s: status %d: %s", ErrUnavailable, role, resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: role %s: decode response: %v", ErrUnavailable, role, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: role %s: %s", ErrUnavailable, role, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: role %s: empty choices", ErrUnavailable, role)
	}

	return &Reply{
		Content:  parsed.Choices[0].Message.Content,
		Model:    parsed.Model,
		Provider: c.cfg.Provider,
		Usage:    parsed.Usage,
	}, nil
}

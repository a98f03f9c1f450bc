// Package llm is the OpenRouter chat-completions adapter behind the
// credibility scorer.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/memocred/internal/domain/scoring"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
)

const (
	// DefaultModel matches the model the scoring prompt was tuned on.
	DefaultModel    = "anthropic/claude-3.5-haiku"
	defaultEndpoint = "https://openrouter.ai/api/v1"
	appTitle        = "memocred"
)

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithModel selects the model id.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client implements scoring.Client against OpenRouter.
type Client struct {
	apiKey      string
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	http        *http.Client
	log         logger.Logger
}

// NewClient creates a client authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		endpoint:    defaultEndpoint,
		model:       DefaultModel,
		temperature: 0.2,
		maxTokens:   1000,
		http:        &http.Client{Timeout: 60 * time.Second},
		log:         logger.Get().Named("llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type apiError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error"`
}

// RequestScore sends the evidence summary and parses the model's answer.
func (c *Client) RequestScore(ctx context.Context, summary string) (scoring.Reply, error) {
	if c.apiKey == "" {
		return scoring.Reply{}, errors.Mark(errors.New("scoring API key not configured"), scoring.ErrScoring)
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: summary}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return scoring.Reply{}, errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return scoring.Reply{}, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", appTitle)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return scoring.Reply{}, errors.Wrap(context.Cause(ctx), "request cancelled")
		}
		return scoring.Reply{}, errors.Mark(errors.Wrap(err, "send request"), scoring.ErrTransient)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return scoring.Reply{}, errors.Mark(errors.Wrap(err, "read response"), scoring.ErrTransient)
	}
	if err := classifyStatus(resp.StatusCode, payload); err != nil {
		return scoring.Reply{}, err
	}

	var cr chatResponse
	if err := json.Unmarshal(payload, &cr); err != nil {
		return scoring.Reply{}, errors.Mark(errors.Wrap(err, "decode response"), scoring.ErrInvalidReply)
	}
	if cr.Error != nil {
		// OpenRouter reports some upstream failures inside a 200.
		return scoring.Reply{}, errors.Mark(errors.Newf("provider error %s: %s", string(cr.Error.Code), cr.Error.Message), scoring.ErrTransient)
	}
	if len(cr.Choices) == 0 {
		return scoring.Reply{}, errors.Mark(errors.New("no choices in response"), scoring.ErrInvalidReply)
	}

	content := cr.Choices[0].Message.Content
	c.log.Debug(ctx, "scoring reply received",
		logger.String("model", c.model),
		logger.Int("prompt_tokens", cr.Usage.PromptTokens),
		logger.Int("completion_tokens", cr.Usage.CompletionTokens),
		logger.Int("content_length", len(content)))

	return ParseReply(content)
}

func classifyStatus(status int, payload []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return errors.Mark(errors.Newf("API request failed with status %d: %s", status, clip(string(payload))), scoring.ErrTransient)
	default:
		return errors.Mark(errors.Newf("API request failed with status %d: %s", status, clip(string(payload))), scoring.ErrScoring)
	}
}

package llm

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	appLog "daylife/internal/log"
)

const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama3-70b-8192"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 30 * time.Second
)

var (
	// ErrMissingAPIKey means no credential is configured for the model API.
	ErrMissingAPIKey = errors.New("model API key not configured")
	// ErrUpstreamRejected means the model API refused the request (HTTP 400).
	ErrUpstreamRejected = errors.New("model API rejected request")
	// ErrUpstreamUnavailable covers network failures, non-400 error statuses
	// and answers without any choice.
	ErrUpstreamUnavailable = errors.New("model API unavailable")
)

// Client completes a single prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds the model endpoint settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultConfig returns the Groq defaults without an API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
	}
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAIClient builds a client. Zero fields in cfg take the defaults,
// except Temperature where zero is a valid setting and only a negative
// value selects the default.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Model reports the configured model name.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

// Complete sends prompt as a single user message and returns the first
// choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: wireTemperature(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)
	if err != nil {
		appLog.Warn("model request failed", "model", c.cfg.Model, "latency_ms", latency.Milliseconds(), "error", err.Error())
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Wrap(ErrUpstreamUnavailable, "response has no choices")
	}

	appLog.Debug("model request completed",
		"model", c.cfg.Model,
		"latency_ms", latency.Milliseconds(),
		"tokens", resp.Usage.TotalTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

// wireTemperature keeps an explicit zero on the wire; the request field is
// omitempty, so a literal 0 would leave the server default in place.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// classify maps a client error onto ErrUpstreamRejected or
// ErrUpstreamUnavailable, keeping the upstream detail in the message.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusBadRequest {
			return errors.Wrap(ErrUpstreamRejected, apiErr.Message)
		}
		return errors.Wrapf(ErrUpstreamUnavailable, "status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusBadRequest {
		return errors.Wrap(ErrUpstreamRejected, reqErr.Error())
	}
	return errors.Wrap(ErrUpstreamUnavailable, err.Error())
}

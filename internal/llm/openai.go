package llm

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvBaseURL = "OPENAI_BASE_URL"
)

// ClientConfig configures the OpenAI-compatible client.
type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Temperature float64
	// HTTPTimeout bounds a single HTTP exchange. The per-call deadline set by
	// Guard is usually shorter.
	HTTPTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Temperature: 0.7,
		HTTPTimeout: 2 * time.Minute,
	}
}

// ConfigFromEnv fills empty credentials from the environment.
func (c ClientConfig) ConfigFromEnv() ClientConfig {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv(EnvBaseURL)
	}
	return c
}

// Client is a Completer backed by langchaingo's OpenAI driver.
type Client struct {
	llm         *openai.LLM
	temperature float64
}

// NewHTTPClient returns the HTTP client used for completion calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// New returns a Completer for cfg. Without an API key it returns Unavailable
// instead of an error, so the explorer still runs on fallbacks.
func New(cfg ClientConfig) (Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Unavailable{Reason: "no API key configured"}, nil
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultClientConfig().HTTPTimeout
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(DefaultAnswerModel),
		openai.WithHTTPClient(NewHTTPClient(cfg.HTTPTimeout)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Client{llm: model, temperature: cfg.Temperature}, nil
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	callOpts := []llms.CallOption{
		llms.WithModel(req.Model),
		llms.WithTemperature(c.temperature),
	}
	if req.JSON {
		callOpts = append(callOpts, llms.WithJSONMode())
	}
	return llms.GenerateFromSinglePrompt(ctx, c.llm, req.Prompt, callOpts...)
}

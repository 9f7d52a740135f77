// Package llm generates natural-language explanations for
// recommendations through an OpenAI-compatible chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	// Explanations are stable for a given instance; regenerating them
	// on every request burns tokens for identical output.
	cacheTTL = 7 * 24 * time.Hour

	maxTokens   = 200
	temperature = 0.7
)

const systemPrompt = "You are a cloud cost optimization assistant. Explain the reasoning behind " +
	"optimization recommendations for compute instances in simple, FinOps-friendly language. " +
	"Keep explanations concise (2-4 sentences) and focus on cost savings and resource utilization."

// Config holds the client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client calls a chat completions endpoint and caches explanations per
// instance.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	cache   *ccache.Cache[string]
	logger  *slog.Logger
}

// NewClient creates an explanation client. Returns nil when no API key
// is configured; callers treat a nil client as the feature being off.
func NewClient(cfg Config) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
		cache:   ccache.New(ccache.Configure[string]().MaxSize(1000).ItemsToPrune(100)),
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// ExplainRecommendation returns a short narrative for one
// recommendation, serving repeats from the cache.
func (c *Client) ExplainRecommendation(ctx context.Context, rec engine.Recommendation) (string, error) {
	key := cacheKey(rec.InstanceID)
	if item := c.cache.Get(key); item != nil && !item.Expired() {
		c.logger.Debug("serving cached explanation", "instance_id", rec.InstanceID)
		return item.Value(), nil
	}

	explanation, err := c.complete(ctx, rec)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, explanation, cacheTTL)
	return explanation, nil
}

func (c *Client) complete(ctx context.Context, rec engine.Recommendation) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(rec)},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", engine.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("%w: invalid API key", engine.ErrUpstreamUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: chat completions returned %d", engine.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", engine.ErrUpstreamUnavailable, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completions returned no choices", engine.ErrUpstreamUnavailable)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func userPrompt(rec engine.Recommendation) string {
	hourlyCost := "unknown"
	if rec.HourlyCost != nil {
		hourlyCost = fmt.Sprintf("$%.3f/hr", *rec.HourlyCost)
	}
	reasons := "None"
	if len(rec.Reasons) > 0 {
		reasons = strings.Join(rec.Reasons, ", ")
	}
	return fmt.Sprintf(`Recommendation details:
- Action: %s
- Instance: %s (%s)
- Environment: %s, Region: %s
- Current hourly cost: %s
- Projected monthly savings: $%.2f
- Downsize confidence: %.1f%%
- Reasons: %s

Provide a clear, concise explanation of this recommendation.`,
		rec.Action,
		rec.CloudInstanceID,
		orUnknown(rec.InstanceType),
		orUnknown(rec.Environment),
		orUnknown(rec.Region),
		hourlyCost,
		rec.ProjectedMonthlySavings,
		rec.ConfidenceDownsize*100,
		reasons,
	)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func cacheKey(instanceID int64) string {
	return "explanation:" + strconv.FormatInt(instanceID, 10)
}

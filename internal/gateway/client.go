package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"litreview/internal/config"
)

// ChatRequest describes one chat-completion invocation.
type ChatRequest struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
	// Structured requests the provider's JSON output mode and routes the
	// response through the recovery pipeline.
	Structured bool
}

// CallRecord is the audit trail entry for one completed call (after all
// HTTP retries have resolved).
type CallRecord struct {
	Model     string
	APIBase   string
	Status    string
	ErrorType string
	Attempts  int
	Elapsed   time.Duration
}

// AuditSink receives one record per resolved gateway call. Implementations
// must tolerate being called from multiple goroutines.
type AuditSink interface {
	RecordCall(ctx context.Context, rec CallRecord)
}

// Client performs chat-completion calls with bounded exponential-backoff
// retries. HTTP-level and network-level failures share the same retry
// policy; 4xx other than 429 aborts immediately.
type Client struct {
	httpc       *http.Client
	maxAttempts int
	backoffBase time.Duration
	sleep       func(time.Duration)
	audit       AuditSink
	log         *log.Logger
}

// NewClient builds a gateway client. The timeout is generous by design:
// model generation runs for minutes, not seconds.
func NewClient(timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		httpc:       &http.Client{Timeout: timeout},
		maxAttempts: 3,
		backoffBase: 2 * time.Second,
		sleep:       time.Sleep,
		audit:       nil,
		log:         logger,
	}
}

// SetAudit attaches an optional call audit sink.
func (c *Client) SetAudit(sink AuditSink) { c.audit = sink }

type chatPayload struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

// Complete performs the call and returns the raw assistant text.
func (c *Client) Complete(ctx context.Context, eng config.EngineConfig, req ChatRequest) (string, error) {
	if !eng.Configured() {
		return "", newCallError(CategoryConfig, "engine config missing apiKey or model")
	}

	payload := chatPayload{
		Model: eng.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.Structured {
		payload.ResponseFormat = &respFormat{Type: "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", newCallError(CategoryPermanent, "encode request: %w", err)
	}
	url := strings.TrimRight(eng.APIBase, "/") + "/chat/completions"

	start := time.Now()
	var lastErr error
	attempts := 0
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		attempts = attempt + 1
		content, callErr := c.doOnce(ctx, url, eng.APIKey, body)
		if callErr == nil {
			c.record(ctx, eng, "success", "", attempts, time.Since(start))
			return content, nil
		}
		lastErr = callErr
		if !Retriable(callErr) {
			break
		}
		if attempt == c.maxAttempts-1 {
			break
		}
		wait := c.backoffBase * (1 << attempt)
		c.log.Printf("gateway: %s attempt %d/%d failed (%v), retrying in %s",
			eng.Model, attempts, c.maxAttempts, callErr, wait)
		select {
		case <-ctx.Done():
			return "", newCallError(CategoryTransient, "call canceled: %w", ctx.Err())
		default:
			c.sleep(wait)
		}
	}
	c.record(ctx, eng, "failed", string(Classify(lastErr)), attempts, time.Since(start))
	return "", lastErr
}

func (c *Client) doOnce(ctx context.Context, url, apiKey string, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", newCallError(CategoryPermanent, "build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", newCallError(CategoryTransient, "http request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", newCallError(CategoryRate, "http 429: %s", truncate(string(raw), 200))
	case resp.StatusCode >= 500:
		return "", newCallError(CategoryTransient, "http %d: %s", resp.StatusCode, truncate(string(raw), 200))
	case resp.StatusCode >= 400:
		return "", newCallError(CategoryPermanent, "http %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", newCallError(CategoryTransient, "decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", newCallError(CategoryTransient, "response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// CompleteStructured performs the call and coerces the response text into a
// JSON object via the recovery pipeline. The result is never nil on a
// successful HTTP call: unrecoverable text yields the fallback error record,
// which downstream quality checks reject.
func (c *Client) CompleteStructured(ctx context.Context, eng config.EngineConfig, req ChatRequest) (map[string]any, error) {
	req.Structured = true
	content, err := c.Complete(ctx, eng, req)
	if err != nil {
		return nil, err
	}
	if v, ok := Recover(content); ok {
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}
	v := AutoCorrect(content)
	if m, ok := v.(map[string]any); ok {
		c.log.Printf("gateway: repaired malformed JSON from %s", eng.Model)
		return m, nil
	}
	return FallbackRecord(content), nil
}

func (c *Client) record(ctx context.Context, eng config.EngineConfig, status, errType string, attempts int, elapsed time.Duration) {
	if c.audit == nil {
		return
	}
	c.audit.RecordCall(ctx, CallRecord{
		Model:     eng.Model,
		APIBase:   eng.APIBase,
		Status:    status,
		ErrorType: errType,
		Attempts:  attempts,
		Elapsed:   elapsed,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

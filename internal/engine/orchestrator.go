package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"litreview/internal/config"
	"litreview/internal/gateway"
	"litreview/internal/models"
	"litreview/internal/ratelimit"
	"litreview/internal/review"
)

// Completer is the slice of the gateway client the orchestrator depends on.
type Completer interface {
	CompleteStructured(ctx context.Context, eng config.EngineConfig, req gateway.ChatRequest) (map[string]any, error)
}

// RateLimiter is the limiter surface the orchestrator depends on.
type RateLimiter interface {
	Consume(tokensNeeded, requestsNeeded int, engine ratelimit.Engine) (ratelimit.Decision, error)
	EngineStatus(engine ratelimit.Engine) (ratelimit.Status, error)
}

var (
	// ErrContentTooLarge means the request exceeds even the backup engine's
	// token capacity. Terminal for the work item.
	ErrContentTooLarge = errors.New("engine: content exceeds every engine's token capacity")
	// ErrBudgetExhausted means the rate budget stayed empty after one wait.
	// The item should be retried in a later round.
	ErrBudgetExhausted = errors.New("engine: rate budget exhausted")
)

// maxRateWait caps how long a single worker blocks on a depleted budget.
const maxRateWait = 2 * time.Minute

// Orchestrator routes one summarization request through the primary engine
// and fails over to the backup when the primary is oversized, rate-starved,
// or errors out.
type Orchestrator struct {
	primary config.EngineConfig
	backup  config.EngineConfig
	reserve int
	limiter RateLimiter
	client  Completer
	sleep   func(time.Duration)
	log     *log.Logger
}

// New wires an orchestrator from explicit dependencies.
func New(cfg config.Config, limiter RateLimiter, client Completer, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		primary: cfg.Primary,
		backup:  cfg.Backup,
		reserve: cfg.Performance.ReserveTokens,
		limiter: limiter,
		client:  client,
		sleep:   time.Sleep,
		log:     logger,
	}
}

type attemptState int

const (
	statePrimary attemptState = iota
	stateBackup
)

type acquireResult int

const (
	acquired acquireResult = iota
	oversized
	starved
)

// Summarize runs the failover sequence and returns the normalized summary
// together with the engine that produced it.
func (o *Orchestrator) Summarize(ctx context.Context, systemPrompt, prompt string) (*models.Summary, ratelimit.Engine, error) {
	tokens := review.EstimateTokens(systemPrompt+prompt) + o.reserve
	if tokens <= 0 {
		tokens = 1
	}

	state := statePrimary
	var primaryErr error
	if !o.primary.Configured() {
		state = stateBackup
		primaryErr = errors.New("engine: primary not configured")
	}

	for {
		switch state {
		case statePrimary:
			res, err := o.acquire(ctx, tokens, ratelimit.EnginePrimary)
			if err != nil {
				return nil, "", err
			}
			switch res {
			case oversized:
				o.log.Printf("engine: request (~%d tokens) exceeds primary capacity, switching to backup", tokens)
				primaryErr = fmt.Errorf("request too large for primary (~%d tokens)", tokens)
				state = stateBackup
				continue
			case starved:
				primaryErr = ErrBudgetExhausted
				state = stateBackup
				continue
			}
			m, err := o.client.CompleteStructured(ctx, o.primary, chatReq(o.primary, systemPrompt, prompt))
			if err != nil {
				o.log.Printf("engine: primary %s failed (%v), trying backup", o.primary.Model, err)
				primaryErr = err
				state = stateBackup
				continue
			}
			return summaryFromMap(m), ratelimit.EnginePrimary, nil

		case stateBackup:
			s, err := o.runBackup(ctx, tokens, systemPrompt, prompt)
			if err != nil {
				if primaryErr != nil && !errors.Is(err, ErrContentTooLarge) {
					return nil, "", fmt.Errorf("engine: both engines failed: primary: %v; backup: %w", primaryErr, err)
				}
				return nil, "", err
			}
			return s, ratelimit.EngineBackup, nil
		}
	}
}

// SummarizeBackup calls the backup engine directly, skipping the primary.
// Used for the single manual retry after a quality rejection.
func (o *Orchestrator) SummarizeBackup(ctx context.Context, systemPrompt, prompt string) (*models.Summary, error) {
	tokens := review.EstimateTokens(systemPrompt+prompt) + o.reserve
	if tokens <= 0 {
		tokens = 1
	}
	return o.runBackup(ctx, tokens, systemPrompt, prompt)
}

func (o *Orchestrator) runBackup(ctx context.Context, tokens int, systemPrompt, prompt string) (*models.Summary, error) {
	if !o.backup.Configured() {
		return nil, errors.New("engine: backup engine not configured")
	}
	res, err := o.acquire(ctx, tokens, ratelimit.EngineBackup)
	if err != nil {
		return nil, err
	}
	switch res {
	case oversized:
		return nil, ErrContentTooLarge
	case starved:
		return nil, ErrBudgetExhausted
	}
	m, err := o.client.CompleteStructured(ctx, o.backup, chatReq(o.backup, systemPrompt, prompt))
	if err != nil {
		return nil, err
	}
	return summaryFromMap(m), nil
}

// acquire consumes budget from the limiter, waiting out at most one
// RetryAfter verdict before giving up on this engine.
func (o *Orchestrator) acquire(ctx context.Context, tokens int, eng ratelimit.Engine) (acquireResult, error) {
	for attempt := 0; ; attempt++ {
		d, err := o.limiter.Consume(tokens, 1, eng)
		if err != nil {
			return 0, err
		}
		switch d.Verdict {
		case ratelimit.Allow:
			return acquired, nil
		case ratelimit.SwitchToBackup, ratelimit.LimitExceeded:
			return oversized, nil
		case ratelimit.RetryAfter:
			if attempt > 0 {
				return starved, nil
			}
			wait := d.Wait
			if wait > maxRateWait {
				wait = maxRateWait
			}
			if st, serr := o.limiter.EngineStatus(eng); serr == nil && !st.Reactive {
				o.log.Printf("engine: %s budget depleted (tpm %.0f/%.0f, rpm %.0f/%.0f), waiting %s",
					eng, st.TPMAvailable, st.TPMCapacity, st.RPMAvailable, st.RPMCapacity, wait.Round(time.Second))
			} else {
				o.log.Printf("engine: %s budget depleted, waiting %s", eng, wait.Round(time.Second))
			}
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			default:
				o.sleep(wait)
			}
		default:
			return 0, fmt.Errorf("engine: unexpected limiter verdict %s", d.Verdict)
		}
	}
}

func chatReq(eng config.EngineConfig, systemPrompt, prompt string) gateway.ChatRequest {
	return gateway.ChatRequest{
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		MaxTokens:    eng.MaxTokens,
		Temperature:  eng.Temperature,
	}
}

// summaryFromMap decodes the recovered JSON object into a Summary and
// normalizes it. Legacy responses that nest the shared fields under
// "common_core" are flattened first.
func summaryFromMap(m map[string]any) *models.Summary {
	if cc, ok := m["common_core"].(map[string]any); ok {
		merged := make(map[string]any, len(m)+len(cc))
		for k, v := range cc {
			merged[k] = v
		}
		for k, v := range m {
			if k == "common_core" {
				continue
			}
			merged[k] = v
		}
		m = merged
	}
	coerceStringList(m, "authors")
	coerceStringList(m, "key_points")

	var s models.Summary
	if raw, err := json.Marshal(m); err == nil {
		// Partial decode is fine: mistyped fields stay zero and are
		// normalized below.
		_ = json.Unmarshal(raw, &s)
	}
	normalize(&s)
	return &s
}

// coerceStringList rewrites a scalar string value into a one-element list so
// the struct decode does not drop it.
func coerceStringList(m map[string]any, key string) {
	if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
		m[key] = []string{v}
	}
}

func normalize(s *models.Summary) {
	fill := func(p *string) {
		if strings.TrimSpace(*p) == "" {
			*p = review.Placeholder
		}
	}
	fill(&s.Summary)
	fill(&s.Methodology)
	fill(&s.Findings)
	fill(&s.Conclusions)
	fill(&s.Relevance)
	fill(&s.Limitations)
	if s.KeyPoints == nil {
		s.KeyPoints = []string{}
	}
}

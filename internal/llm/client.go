package llm

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
)

const (
	DefaultMaxRetries        = 3
	DefaultBaseDelay         = time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultRateLimitCooldown = 60 * time.Second
)

// ClientConfig tunes the fallback loop.
type ClientConfig struct {
	// MaxRetries is the number of attempts each backend gets per Generate call.
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	RateLimitCooldown time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = DefaultRateLimitCooldown
	}
	return c
}

// Client is the completion client. It tries backends in priority order, retries
// transient failures with exponential backoff and rotates away from throttled
// backends immediately.
type Client struct {
	cfg      ClientConfig
	backends []BackendSpec
	tracker  *RateTracker
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClient registers specs with tracker and orders them by ascending priority.
func NewClient(cfg ClientConfig, tracker *RateTracker, log *zap.Logger, specs ...BackendSpec) (*Client, error) {
	if len(specs) == 0 {
		return nil, ErrNoBackends
	}
	if tracker == nil {
		tracker = NewRateTracker(defaultWindow)
	}

	seen := make(map[string]struct{}, len(specs))
	ordered := make([]BackendSpec, 0, len(specs))
	for _, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, err
		}
		name := spec.Backend.Name()
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("backend %s registered twice", name)
		}
		seen[name] = struct{}{}
		tracker.Register(name, spec.RequestsPerMinute)
		ordered = append(ordered, spec)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	return &Client{
		cfg:      cfg.withDefaults(),
		backends: ordered,
		tracker:  tracker,
		logger:   logger.OrNop(log),
		sleep:    sleepContext,
	}, nil
}

// Backends returns the backend names in priority order.
func (c *Client) Backends() []string {
	names := make([]string, 0, len(c.backends))
	for _, spec := range c.backends {
		names = append(names, spec.Backend.Name())
	}
	return names
}

// Generate returns the first successful completion. It fails with *ExhaustedError
// only when every backend was skipped or ran out of attempts.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Response, error) {
	req := Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
	}

	var lastErr error

backends:
	for _, spec := range c.order(opts.PreferredBackend) {
		backend := spec.Backend
		name := backend.Name()
		log := logger.WithCommonFields(c.logger, name, backend.Model())

		if c.tracker.IsLimited(name) {
			log.Debug("skipping rate-limited backend")
			lastErr = fmt.Errorf("%s: rate limited", name)
			continue
		}

		for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
			if !c.tracker.Reserve(name) {
				log.Debug("backend reached its request ceiling, switching", zap.Int("attempt", attempt))
				lastErr = fmt.Errorf("%s: rate limited", name)
				continue backends
			}

			outcome := classify(backend.Complete(ctx, req))
			if outcome.kind != outcomeSuccess {
				c.tracker.Release(name)
			}

			switch outcome.kind {
			case outcomeSuccess:
				resp := outcome.resp
				if resp.Provider == "" {
					resp.Provider = name
				}
				if resp.Model == "" {
					resp.Model = backend.Model()
				}
				log.Debug("completion succeeded",
					zap.Int("attempt", attempt),
					zap.Int("total_tokens", resp.Usage.TotalTokens),
				)
				return resp, nil

			case outcomeRateLimited:
				lastErr = outcome.err
				c.tracker.MarkLimited(name, c.cfg.RateLimitCooldown)
				log.Warn("backend rate limited, switching",
					zap.Int("attempt", attempt),
					zap.Duration("cooldown", c.cfg.RateLimitCooldown),
					zap.Error(outcome.err),
				)
				continue backends

			default:
				lastErr = outcome.err
				if ctx.Err() != nil {
					return nil, fmt.Errorf("completion cancelled: %w", ctx.Err())
				}
				if attempt == c.cfg.MaxRetries {
					log.Warn("backend attempts exhausted",
						zap.Int("attempts", attempt),
						zap.Error(outcome.err),
					)
					continue backends
				}

				delay := c.backoff(attempt)
				log.Warn("completion attempt failed, retrying",
					zap.Int("attempt", attempt),
					zap.Duration("backoff", delay),
					zap.Error(outcome.err),
				)
				if err := c.sleep(ctx, delay); err != nil {
					return nil, fmt.Errorf("completion cancelled: %w", err)
				}
			}
		}
	}

	return nil, &ExhaustedError{LastErr: lastErr}
}

// order returns the priority order with the preferred backend, if registered, moved first.
func (c *Client) order(preferred string) []BackendSpec {
	preferred = strings.TrimSpace(preferred)
	if preferred == "" {
		return c.backends
	}

	ordered := make([]BackendSpec, 0, len(c.backends))
	for _, spec := range c.backends {
		if strings.EqualFold(spec.Backend.Name(), preferred) {
			ordered = append(ordered, spec)
		}
	}
	if len(ordered) == 0 {
		return c.backends
	}
	for _, spec := range c.backends {
		if !strings.EqualFold(spec.Backend.Name(), preferred) {
			ordered = append(ordered, spec)
		}
	}
	return ordered
}

// backoff is baseDelay * multiplier^(attempt-1).
func (c *Client) backoff(attempt int) time.Duration {
	factor := math.Pow(c.cfg.BackoffMultiplier, float64(attempt-1))
	return time.Duration(float64(c.cfg.BaseDelay) * factor)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

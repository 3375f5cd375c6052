// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ingestgate/ingestgate/domain/decision"
	"github.com/ingestgate/ingestgate/domain/gateway"
	"github.com/ingestgate/ingestgate/domain/ingest"
	"github.com/ingestgate/ingestgate/domain/ratelimit"
	"github.com/ingestgate/ingestgate/ports"
)

// IngestService handles requests under the reserved ingest namespaces.
type IngestService struct {
	counters  ports.CounterStore
	collector ports.Upstream
	clock     ports.Clock
	idGen     ports.IDGenerator
	recorder  ports.DecisionRecorder
	logger    zerolog.Logger

	// Dynamic configuration (hot-reloadable)
	dynamicCfg atomic.Pointer[DynamicConfig]
}

// DynamicConfig contains hot-reloadable configuration.
type DynamicConfig struct {
	Limit   int
	Window  time.Duration
	Matcher *ingest.Matcher
}

// IngestDeps contains dependencies for IngestService.
type IngestDeps struct {
	Counters  ports.CounterStore
	Collector ports.Upstream
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Recorder  ports.DecisionRecorder
	Logger    zerolog.Logger
}

// IngestConfig contains configuration for IngestService.
type IngestConfig struct {
	Limit         int
	Window        time.Duration
	ExtraPatterns []string
}

// NewIngestService creates a new ingest service.
func NewIngestService(deps IngestDeps, cfg IngestConfig) (*IngestService, error) {
	s := &IngestService{
		counters:  deps.Counters,
		collector: deps.Collector,
		clock:     deps.Clock,
		idGen:     deps.IDGen,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
	}

	if err := s.UpdateConfig(cfg.Limit, cfg.Window, cfg.ExtraPatterns); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateConfig updates the hot-reloadable configuration.
// This is thread-safe and can be called while handling requests.
func (s *IngestService) UpdateConfig(limit int, window time.Duration, extraPatterns []string) error {
	matcher, err := ingest.NewMatcher(extraPatterns)
	if err != nil {
		return err
	}

	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}

	s.dynamicCfg.Store(&DynamicConfig{
		Limit:   limit,
		Window:  window,
		Matcher: matcher,
	})
	return nil
}

func (s *IngestService) getDynamicConfig() *DynamicConfig {
	return s.dynamicCfg.Load()
}

// HandleResult represents the outcome of handling an ingest request.
type HandleResult struct {
	Response  gateway.Response
	Error     *gateway.ErrorResponse
	Tag       decision.Tag
	Namespace ingest.Namespace
}

// Handle processes a request addressed to a reserved ingest namespace.
// Path validation runs before rate limiting, so blocked requests never
// consume quota. Rejected requests do not increment the window counter.
func (s *IngestService) Handle(ctx context.Context, req gateway.Request) HandleResult {
	now := s.clock.Now()
	dynCfg := s.getDynamicConfig()
	ns := ingest.Classify(req.Path)

	// 1. Path allow-list check (PURE)
	if !dynCfg.Matcher.Allowed(req.Path) {
		s.record(decision.TagBlockedInvalidPath, req, gateway.ErrInvalidPath.Status, now)
		return HandleResult{
			Error:     &gateway.ErrInvalidPath,
			Tag:       decision.TagBlockedInvalidPath,
			Namespace: ns,
		}
	}

	// 2. Rate limit check (PURE + I/O for counter state)
	rlCfg := ratelimit.Config{Limit: dynCfg.Limit, Window: dynCfg.Window}
	rlResult, err := s.counters.Check(ctx, req.ClientKey, rlCfg, now)
	if err != nil {
		// Fail open: a degraded counter store should not take ingest down.
		s.logger.Error().Err(err).Str("client_key", req.ClientKey).Msg("counter store check failed")
		rlResult = ratelimit.CheckResult{
			Allowed:   true,
			Limit:     rlCfg.Limit,
			Remaining: rlCfg.Limit,
			ResetAt:   now.Add(rlCfg.Window),
		}
	}

	if !rlResult.Allowed {
		retryAfter := retryAfterSeconds(rlResult, now)
		s.record(decision.TagRateLimited, req, gateway.ErrRateLimited.Status, now)

		rlErr := gateway.ErrRateLimited
		rlErr.RetryAfter = retryAfter
		return HandleResult{
			Error: &rlErr,
			Response: gateway.Response{
				Headers: rateLimitHeaders(rlResult, retryAfter),
			},
			Tag:       decision.TagRateLimited,
			Namespace: ns,
		}
	}

	// 3. Forward to the collector (I/O)
	resp, err := s.collector.Forward(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).Str("path", req.Path).Msg("collector upstream error")
		s.record(decision.TagAllowed, req, gateway.ErrUpstreamError.Status, now)
		return HandleResult{
			Error: &gateway.ErrUpstreamError,
			Response: gateway.Response{
				Headers: rateLimitHeaders(rlResult, 0),
			},
			Tag:       decision.TagAllowed,
			Namespace: ns,
		}
	}

	// Quota headers override whatever the collector returned.
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	for k, v := range rateLimitHeaders(rlResult, 0) {
		resp.Headers[k] = v
	}

	s.record(decision.TagAllowed, req, resp.Status, now)
	return HandleResult{
		Response:  resp,
		Tag:       decision.TagAllowed,
		Namespace: ns,
	}
}

func (s *IngestService) record(tag decision.Tag, req gateway.Request, status int, now time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(decision.Event{
		ID:        s.idGen.New(),
		Tag:       tag,
		ClientKey: req.ClientKey,
		Method:    req.Method,
		Path:      req.Path,
		Status:    status,
		UserAgent: req.UserAgent,
		Timestamp: now,
	})
}

// rateLimitHeaders builds the X-RateLimit response headers. retryAfter is
// only set for rejected requests; pass 0 to omit the Retry-After header.
func rateLimitHeaders(result ratelimit.CheckResult, retryAfter int) map[string]string {
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(result.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(result.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(result.ResetAt.Unix(), 10),
	}
	if retryAfter > 0 {
		headers["Retry-After"] = strconv.Itoa(retryAfter)
	}
	return headers
}

// retryAfterSeconds converts the remaining window to whole seconds,
// rounding up so clients never retry before the window resets.
func retryAfterSeconds(result ratelimit.CheckResult, now time.Time) int {
	delay := ratelimit.CalculateDelay(result, now)
	if delay <= 0 {
		return 1
	}
	secs := int((delay + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

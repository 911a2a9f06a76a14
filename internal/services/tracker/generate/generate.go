// Package generate is the parse/retry layer between extractors and the
// language model. Do runs a named prompt through a Generator until the
// caller's parse function accepts the response, consulting a result cache
// and a per-prompt backoff tracker so a misbehaving prompt degrades to
// skipped generations instead of hammering the model.
package generate

import (
	"context"
	"strconv"
	"time"

	apperrors "github.com/storyweft/storyweft/internal/platform/errors"
)

// Request is a single chat-completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Generator produces a raw model response for a request. Profile identifies
// the backing model configuration and keys the result cache.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Profile() string
}

// Prompt is one named generation: the rendered templates plus sampling
// parameters. Name keys both the cache and the backoff tracker.
type Prompt struct {
	Name        string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Result reports the outcome of a Do call. Exactly one of OK, Aborted,
// Skipped, or a non-nil Err with OK false describes what happened.
type Result[T any] struct {
	Data     T
	OK       bool
	Aborted  bool
	Skipped  bool
	CacheHit bool
	Attempts int
	Err      error
}

// Options tune the retry loop. Attempt 0 uses the prompt's own temperature;
// retries use the fixed RetryTemperature.
type Options struct {
	MaxRetries       int
	RetryTemperature float64
}

// Service bundles a Generator with the process-wide resilience state.
type Service struct {
	gen     Generator
	cache   *ResultCache
	backoff *Backoff
	opts    Options
	now     func() time.Time
}

// NewService wires a generator to its cache and backoff tracker.
func NewService(gen Generator, cache *ResultCache, backoff *Backoff, opts Options) *Service {
	return &Service{
		gen:     gen,
		cache:   cache,
		backoff: backoff,
		opts:    opts,
		now:     time.Now,
	}
}

// SetNow overrides the service clock. Test hook.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Do generates a response for p and parses it with parse, retrying with a
// lower temperature until parse accepts or attempts run out. Cache hits
// return without calling the Generator; prompts in cooldown are skipped
// with a COOLDOWN_ACTIVE error. Cancellation short-circuits at any point
// with an aborted result.
func Do[T any](ctx context.Context, s *Service, p Prompt, parse func(raw string) (T, bool)) Result[T] {
	var res Result[T]
	if ctx.Err() != nil {
		res.Aborted = true
		res.Err = apperrors.Wrap(apperrors.CodeAborted, "generation aborted", ctx.Err())
		return res
	}

	ctx, span := startGenerateSpan(ctx, p.Name)
	defer span.End()

	now := s.now()
	key := CacheKey{
		Prompt:      p.Name,
		Profile:     s.gen.Profile(),
		Temperature: p.Temperature,
		SystemHash:  hashText(p.System),
		UserHash:    hashText(p.User),
	}
	if raw, ok := s.cache.Get(key, now); ok {
		if data, parsed := parse(raw); parsed {
			count(ctx, metricCacheHits, p.Name)
			res.Data = data
			res.OK = true
			res.CacheHit = true
			return res
		}
		// A cached response the parser no longer accepts counts as a miss.
	}
	count(ctx, metricCacheMisses, p.Name)

	if skip, until := s.backoff.ShouldSkip(p.Name, now); skip {
		count(ctx, metricBackoffSkips, p.Name)
		res.Skipped = true
		res.Err = apperrors.WithMetadata(apperrors.CodeCooldownActive, "prompt in cooldown", map[string]string{
			"prompt": p.Name,
			"until":  until.UTC().Format(time.RFC3339),
		})
		return res
	}

	attempts := s.opts.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		req := Request{
			System:      p.System,
			User:        p.User,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		}
		if attempt > 0 {
			req.Temperature = s.opts.RetryTemperature
		}
		count(ctx, metricAttempts, p.Name)
		res.Attempts = attempt + 1

		raw, err := s.gen.Generate(ctx, req)
		if err == nil {
			if data, parsed := parse(raw); parsed {
				s.backoff.RecordSuccess(p.Name)
				s.cache.Put(key, raw, s.now())
				res.Data = data
				res.OK = true
				return res
			}
			lastErr = apperrors.New(apperrors.CodeParseFailure, "response did not validate")
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			res.Aborted = true
			res.Err = apperrors.Wrap(apperrors.CodeAborted, "generation aborted", ctx.Err())
			return res
		}
	}

	s.backoff.RecordFailure(p.Name, s.now())
	count(ctx, metricParseFailures, p.Name)
	res.Err = apperrors.WrapWithMetadata(apperrors.CodeParseFailure,
		"no valid response after retries",
		map[string]string{"prompt": p.Name, "attempts": strconv.Itoa(attempts)},
		lastErr)
	return res
}

// Package enrich orchestrates the enrichment flow: fingerprint the request,
// check the response cache, and only when a generation call is unavoidable
// submit it through the rate-limited sequencer, caching whatever comes back.
package enrich

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"finance-enricher/internal/cache"
	"finance-enricher/internal/common/errors"
	"finance-enricher/internal/common/logging"
	"finance-enricher/internal/sequencer"
)

// Prompt is the payload handed to the generative collaborator.
type Prompt struct {
	Task    string      `json:"task"`
	Period  string      `json:"period"`
	Topic   string      `json:"topic,omitempty"`
	Tier    cache.Tier  `json:"tier"`
	Payload interface{} `json:"payload"`
}

// Generator is the opaque generative-text collaborator. It may fail, may be
// slow, and may report quota exhaustion through *errors.APIError.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error)
}

// Request identifies one enrichment result. Payload must be an aggregate,
// never raw line-item transactions.
type Request struct {
	Scope   string // reporting period, "YYYY-MM"
	Layer   cache.Layer
	Topic   string
	Payload interface{}
	Tier    cache.Tier
}

// Enricher ties the cache, the sequencer and the collaborator together.
type Enricher struct {
	generator Generator
	cache     *cache.Cache
	seq       *sequencer.Sequencer
	breaker   *gobreaker.CircuitBreaker
	group     singleflight.Group
	logger    logging.Logger
}

// New creates an enricher. The circuit breaker shields the collaborator from
// pointless calls while it is failing outright; quota errors are excluded
// from tripping it because the sequencer already handles those with backoff.
func New(generator Generator, c *cache.Cache, seq *sequencer.Sequencer, logger logging.Logger) *Enricher {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generator",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsRateLimited(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				logging.Field{Key: "breaker", Value: name},
				logging.Field{Key: "from", Value: from.String()},
				logging.Field{Key: "to", Value: to.String()},
			)
		},
	})

	return &Enricher{
		generator: generator,
		cache:     c,
		seq:       seq,
		breaker:   breaker,
		logger:    logger,
	}
}

// Enrich returns the enrichment result for the request, from cache when
// possible. Concurrent callers with the same fingerprint share one pending
// generation instead of issuing duplicate calls.
func (e *Enricher) Enrich(ctx context.Context, req Request) (json.RawMessage, error) {
	return e.enrich(ctx, req, nil)
}

func (e *Enricher) enrich(ctx context.Context, req Request, validate func(json.RawMessage) error) (json.RawMessage, error) {
	key := cache.Fingerprint(cache.Parts{
		Scope:   req.Scope,
		Layer:   req.Layer,
		Topic:   req.Topic,
		Payload: req.Payload,
		Tier:    req.Tier,
	})

	if data, ok := e.cache.Get(ctx, key); ok {
		e.logger.Debug("cache hit", logging.Field{Key: "key", Value: key.String()})
		return data, nil
	}

	v, err, shared := e.group.Do(key.String(), func() (interface{}, error) {
		// A concurrent caller may have filled the cache while we waited for
		// the flight slot.
		if data, ok := e.cache.Get(ctx, key); ok {
			return data, nil
		}
		return e.generate(ctx, key, req, validate)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		e.logger.Debug("joined in-flight generation", logging.Field{Key: "key", Value: key.String()})
	}
	return v.(json.RawMessage), nil
}

func (e *Enricher) generate(ctx context.Context, key cache.Key, req Request, validate func(json.RawMessage) error) (json.RawMessage, error) {
	prompt := Prompt{
		Task:    taskForLayer(req.Layer),
		Period:  req.Scope,
		Topic:   req.Topic,
		Tier:    req.Tier,
		Payload: req.Payload,
	}

	pending := e.seq.Enqueue(uuid.NewString(), func(execCtx context.Context) (json.RawMessage, error) {
		out, err := e.breaker.Execute(func() (interface{}, error) {
			return e.generator.Generate(execCtx, prompt)
		})
		if err != nil {
			return nil, err
		}
		return out.(json.RawMessage), nil
	})

	data, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}

	if !json.Valid(data) {
		return nil, errors.MalformedResponse("generation result is not valid JSON")
	}
	if validate != nil {
		if verr := validate(data); verr != nil {
			return nil, verr
		}
	}

	e.cache.Set(ctx, key, data)
	return data, nil
}

// InvalidatePeriod removes every cached result for one reporting period.
func (e *Enricher) InvalidatePeriod(ctx context.Context, scope string) {
	e.cache.Invalidate(ctx, cache.PeriodPrefix(scope))
}

// Close stops the sequencer, rejecting anything still queued.
func (e *Enricher) Close() {
	e.seq.Stop()
}

// Package sequencer serializes calls to the rate-limited generative endpoint.
// A single worker drains a FIFO queue, enforcing minimum spacing between
// dispatches and retrying quota failures with backoff. Retried requests
// rejoin at the tail, so strict temporal fairness across retries is not
// guaranteed; callers only get "no request skips ahead of requests submitted
// before its most recent enqueue".
package sequencer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"finance-enricher/internal/common/errors"
	"finance-enricher/internal/common/logging"
)

// Executor is the zero-argument operation a caller wants dispatched. The
// sequencer owns when it runs, the caller owns what it does.
type Executor func(ctx context.Context) (json.RawMessage, error)

// Result is the terminal outcome of a queued request.
type Result struct {
	Data json.RawMessage
	Err  error
}

// Pending is the caller's handle on a queued request. It settles exactly once.
type Pending struct {
	id   string
	done chan Result
}

// ID returns the logical id the request was enqueued under.
func (p *Pending) ID() string {
	return p.id
}

// Wait blocks until the request settles or the context is done.
func (p *Pending) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case res := <-p.done:
		return res.Data, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Config controls dispatch spacing and the retry policy.
type Config struct {
	// MinSpacing is the minimum interval between two consecutive dispatches,
	// derived from the endpoint's published quota (N per minute => 60s/N).
	MinSpacing time.Duration
	// MaxRetries is the retry budget for rate-limited failures.
	MaxRetries int
	// BaseDelay seeds the exponential backoff between retries.
	BaseDelay time.Duration
	// MaxDelay caps computed retry delays.
	MaxDelay time.Duration
}

// DefaultConfig returns the policy for a 15-requests-per-minute endpoint.
func DefaultConfig() Config {
	return Config{
		MinSpacing: 4 * time.Second,
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
	}
}

type request struct {
	id         string
	execute    Executor
	done       chan Result
	retryCount int
	delay      time.Duration // assigned on retry, honored before dispatch
}

// Sequencer is the FIFO dispatcher. One worker goroutine owns the queue.
type Sequencer struct {
	config Config
	logger logging.Logger

	mu           sync.Mutex
	queue        []*request
	stopped      bool
	lastDispatch time.Time

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a sequencer and starts its worker loop.
func New(config Config, logger logging.Logger) *Sequencer {
	if config.MinSpacing < 0 {
		config.MinSpacing = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 2 * time.Second
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = config.BaseDelay
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Sequencer{
		config: config,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// Enqueue adds a request at the tail of the queue and returns its handle.
func (s *Sequencer) Enqueue(id string, fn Executor) *Pending {
	req := &request{
		id:      id,
		execute: fn,
		done:    make(chan Result, 1),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		req.done <- Result{Err: errors.QueueCleared(id)}
		return &Pending{id: id, done: req.done}
	}
	s.queue = append(s.queue, req)
	depth := len(s.queue)
	s.mu.Unlock()

	s.logger.Debug("request queued",
		logging.Field{Key: "id", Value: id},
		logging.Field{Key: "queue_depth", Value: depth},
	)

	s.signal()
	return &Pending{id: id, done: req.done}
}

// Cancel removes a not-yet-dispatched request matching id and rejects it.
// A request stays cancellable while it waits out its retry delay or the
// spacing interval; Cancel has no effect once the executor has started
// running.
func (s *Sequencer) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, req := range s.queue {
		if req.id == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			req.done <- Result{Err: errors.Cancelled(id)}
			return true
		}
	}
	return false
}

// Clear rejects every queued request and empties the queue. An executor
// already in flight is not aborted.
func (s *Sequencer) Clear() {
	s.mu.Lock()
	dropped := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, req := range dropped {
		req.done <- Result{Err: errors.QueueCleared(req.id)}
	}

	if len(dropped) > 0 {
		s.logger.Info("queue cleared", logging.Field{Key: "dropped", Value: len(dropped)})
	}
}

// Stop clears the queue and shuts the worker down. Safe to call more than once.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.stop)
	})
	s.Clear()
	s.wg.Wait()
}

// QueueDepth returns the number of requests waiting for dispatch.
func (s *Sequencer) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Sequencer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the single worker loop draining the queue strictly FIFO.
func (s *Sequencer) run() {
	defer s.wg.Done()

	for {
		req := s.peek()
		if req == nil {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		// The head stays in the queue while its retry delay and the spacing
		// interval elapse, keeping it reachable for Cancel and Clear. On a
		// stop mid-sleep, Stop's Clear settles everything still queued.
		if req.delay > 0 {
			if !s.sleep(req.delay) {
				return
			}
		}

		if wait := s.spacingWait(); wait > 0 {
			if !s.sleep(wait) {
				return
			}
		}

		// Cancel or Clear may have claimed the head while the worker slept.
		if !s.take(req) {
			continue
		}
		s.dispatch(req)
	}
}

// peek returns the queue head without removing it, or nil when idle.
func (s *Sequencer) peek() *request {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}

// take pops req from the queue head, failing if it is no longer there.
func (s *Sequencer) take(req *request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 || s.queue[0] != req {
		return false
	}
	s.queue = s.queue[1:]
	return true
}

func (s *Sequencer) spacingWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastDispatch.IsZero() {
		return 0
	}
	elapsed := time.Since(s.lastDispatch)
	if elapsed >= s.config.MinSpacing {
		return 0
	}
	return s.config.MinSpacing - elapsed
}

// sleep waits for d unless the sequencer is stopped first.
func (s *Sequencer) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.stop:
		return false
	}
}

func (s *Sequencer) dispatch(req *request) {
	s.mu.Lock()
	s.lastDispatch = time.Now()
	s.mu.Unlock()

	data, err := req.execute(context.Background())
	if err == nil {
		req.done <- Result{Data: data}
		return
	}

	if !errors.IsRateLimited(err) {
		req.done <- Result{Err: errors.ExecutionFailed("generation call failed", err)}
		return
	}

	if req.retryCount >= s.config.MaxRetries {
		s.logger.Warn("rate limit retries exhausted",
			logging.Field{Key: "id", Value: req.id},
			logging.Field{Key: "attempts", Value: req.retryCount + 1},
		)
		req.done <- Result{Err: errors.RateLimitExceeded(req.id, req.retryCount+1)}
		return
	}

	delay := RetryDelay(req.retryCount, err, s.config.BaseDelay, s.config.MaxDelay)
	req.retryCount++
	req.delay = delay

	s.logger.Info("rate limited, retrying",
		logging.Field{Key: "id", Value: req.id},
		logging.Field{Key: "retry", Value: req.retryCount},
		logging.Field{Key: "delay", Value: delay.String()},
	)

	// Rejoins at the tail: the request loses its original position.
	s.mu.Lock()
	s.queue = append(s.queue, req)
	s.mu.Unlock()
	s.signal()
}

// Package control implements the retry/backpressure controller (C6): a
// process-local, per-provider object that tunes concurrency and delay from
// observed outcomes, and classifies errors into the retry policy the
// worker applies per item. No ambient singleton — one Controller instance
// is constructed per process and passed by reference (spec §4.6, §9).
package control

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/priceline/replacement-pricer/server/internal/ports"
)

// ErrorClass is the retry-policy bucket an outcome falls into (spec §7).
type ErrorClass string

const (
	ClassTransient  ErrorClass = "transient"
	ClassRateLimit  ErrorClass = "rate_limited"
	ClassPermanent  ErrorClass = "permanent"
	ClassNoMatch    ErrorClass = "no_match"
	ClassValidation ErrorClass = "validation"
)

// Classify maps a ports.SearchErrorKind to an ErrorClass. Unrecognized
// kinds, including the empty kind, are classed transient.
func Classify(kind ports.SearchErrorKind, err error) ErrorClass {
	switch kind {
	case ports.SearchErrTimeout, ports.SearchErrUpstream5xx:
		return ClassTransient
	case ports.SearchErrRateLimited:
		return ClassRateLimit
	case ports.SearchErrUpstream4xx:
		return ClassPermanent
	case ports.SearchErrParse:
		return ClassPermanent
	default:
		return ClassTransient
	}
}

// Bounds carries the worker/provider configuration knobs the controller
// moves within (spec §6).
type Bounds struct {
	MaxAttemptsError    int
	MaxAttemptsNotFound int
	MinConcurrency      int
	MaxConcurrency      int
	MinDelay            time.Duration
}

type providerState struct {
	mu          sync.Mutex
	concurrency int
	delay       time.Duration
	window      []bool // true = throttled (429/5xx), ring-buffer-ish sliding window
	windowPos   int
}

const windowSize = 50

// Controller tunes per-provider concurrency/delay and decides retry policy.
// All state is process-local (spec §5, §9).
type Controller struct {
	bounds    Bounds
	mu        sync.Mutex
	providers map[string]*providerState
}

func New(bounds Bounds) *Controller {
	if bounds.MinConcurrency <= 0 {
		bounds.MinConcurrency = 1
	}
	return &Controller{bounds: bounds, providers: make(map[string]*providerState)}
}

func (c *Controller) stateFor(provider string) *providerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.providers[provider]
	if !ok {
		ps = &providerState{concurrency: c.bounds.MaxConcurrency, delay: c.bounds.MinDelay}
		c.providers[provider] = ps
	}
	return ps
}

// Concurrency returns the current allowed in-flight call count for a provider.
func (c *Controller) Concurrency(provider string) int {
	ps := c.stateFor(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.concurrency
}

// Delay returns the current minimum delay before reusing a provider.
func (c *Controller) Delay(provider string) time.Duration {
	ps := c.stateFor(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.delay
}

// Observe records one provider call outcome and adjusts concurrency/delay.
// throttled is true for 429/5xx; the sliding window tracks the throttle
// rate over the last windowSize calls (spec §4.6).
func (c *Controller) Observe(provider string, throttled bool) {
	ps := c.stateFor(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if len(ps.window) < windowSize {
		ps.window = append(ps.window, throttled)
	} else {
		ps.window[ps.windowPos] = throttled
		ps.windowPos = (ps.windowPos + 1) % windowSize
	}

	rate := throttleRate(ps.window)
	switch {
	case rate > 0.2:
		ps.concurrency = maxInt(ps.concurrency/2, c.bounds.MinConcurrency)
		ps.delay = nextDelay(ps.delay)
	case rate == 0 && ps.concurrency < c.bounds.MaxConcurrency:
		ps.concurrency++
		if ps.delay > c.bounds.MinDelay {
			ps.delay = c.bounds.MinDelay
		}
	}
}

func throttleRate(window []bool) float64 {
	if len(window) == 0 {
		return 0
	}
	n := 0
	for _, v := range window {
		if v {
			n++
		}
	}
	return float64(n) / float64(len(window))
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		current = 250 * time.Millisecond
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	jittered := next/2 + time.Duration(rand.Int63n(int64(next/2+1)))
	return jittered
}

// RetryDecision is the per-item outcome of applying retry policy.
type RetryDecision struct {
	Retry           bool
	BroadenQuery    bool
	BackoffDuration time.Duration
}

// Decide applies the per-error-class retry policy (spec §4.6, §7) given the
// class of the latest failure and the item's attempt counters so far.
func (c *Controller) Decide(class ErrorClass, attemptsSoFar int) RetryDecision {
	switch class {
	case ClassValidation, ClassPermanent:
		return RetryDecision{Retry: false}
	case ClassRateLimit:
		return RetryDecision{Retry: attemptsSoFar < c.bounds.MaxAttemptsError, BackoffDuration: c.bounds.MinDelay}
	case ClassNoMatch:
		return RetryDecision{Retry: attemptsSoFar < c.bounds.MaxAttemptsNotFound, BroadenQuery: true}
	case ClassTransient:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 100 * time.Millisecond
		eb.MaxInterval = 5 * time.Second
		return RetryDecision{Retry: attemptsSoFar < c.bounds.MaxAttemptsError, BackoffDuration: eb.NextBackOff()}
	default:
		return RetryDecision{Retry: false}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

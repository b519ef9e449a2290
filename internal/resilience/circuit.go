package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call to the downstream service.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is a breaker position.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen lets a single trial call through; everything else is rejected until it reports.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker trips on the failure ratio of a window of calls. A window holds at least minRequests
// observations and is restarted once it reaches twice that size without tripping.
type Breaker struct {
	mu       sync.Mutex
	state    State
	window   outcomes
	trialing bool
	openedAt time.Time

	minRequests  int
	failureRatio float64
	openFor      time.Duration

	target string
	logger zerolog.Logger
	now    func() time.Time
}

type outcomes struct {
	ok, failed int
}

func (o outcomes) total() int { return o.ok + o.failed }

func (o outcomes) ratio() float64 {
	if o.total() == 0 {
		return 0
	}
	return float64(o.failed) / float64(o.total())
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to 1 request, a 50%
// failure ratio and a 30s cool-off.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	switch {
	case failureRatio <= 0:
		failureRatio = 0.5
	case failureRatio > 1:
		failureRatio = 1
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		target:       "default",
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

// WithTarget names the downstream dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := strings.TrimSpace(target); t != "" {
		b.target = t
	}
	b.publishStateLocked()
	return b
}

// WithLogger sets the logger used for transitions when the request context carries none.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// WithClock replaces time.Now.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

// Allow reports whether a call may proceed. After the cool-off an open breaker admits one trial call
// and moves to half-open.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	allowed := true
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			allowed = false
			break
		}
		b.transitionLocked(ctx, HalfOpen)
		b.trialing = true
	case HalfOpen:
		if b.trialing {
			allowed = false
			break
		}
		b.trialing = true
	}
	if !allowed {
		BreakerRejected.WithLabelValues(b.target).Inc()
	}
	return allowed
}

// Report records the outcome of a call admitted by Allow.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.trialing = false
		if success {
			b.transitionLocked(ctx, Closed)
		} else {
			b.transitionLocked(ctx, Open)
		}
		return
	}

	if success {
		b.window.ok++
	} else {
		b.window.failed++
	}
	if b.window.total() < b.minRequests {
		return
	}
	if b.window.ratio() >= b.failureRatio {
		b.transitionLocked(ctx, Open)
		return
	}
	if b.window.total() >= 2*b.minRequests {
		b.window = outcomes{}
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transitionLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.window = outcomes{}
	switch next {
	case Open:
		b.openedAt = b.now()
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	case Closed:
		b.openedAt = time.Time{}
	}
	BreakerTransitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()
	b.publishStateLocked()

	logger := b.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Info().Str("target", b.target).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishStateLocked() {
	BreakerState.WithLabelValues(b.target).Set(float64(b.state))
}

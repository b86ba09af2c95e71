// v0
// internal/ingest/breaker.go
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while the breaker is failing fast.
var ErrBreakerOpen = errors.New("circuit breaker is open; fast-fail")

// State is the breaker position.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half_open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

// Breaker trips after MaxFailures consecutive failures and lets a single
// trial call through once ResetTimeout has elapsed.
type Breaker struct {
	name     string
	cfg      BreakerConfig
	log      *slog.Logger
	now      func() time.Time
	onChange func(State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// NewBreaker builds a closed breaker. onChange, when non-nil, observes every
// state transition.
func NewBreaker(name string, cfg BreakerConfig, log *slog.Logger, onChange func(State)) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	b := &Breaker{name: name, cfg: cfg, log: log, now: time.Now, onChange: onChange}
	b.log.Info("breaker_created", slog.String("name", name),
		slog.Int("maxFailures", cfg.MaxFailures), slog.Duration("resetTimeout", cfg.ResetTimeout))
	return b
}

// Execute runs op unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrBreakerOpen
	}
	err := op(ctx)
	if err == nil {
		b.onSuccess()
		return nil
	}
	b.onFailure(err)
	return err
}

// State reports the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false
		}
		b.setState(HalfOpen)
		b.log.Info("breaker_probe_start", slog.String("name", b.name), slog.Int("previousFailures", b.failures))
		return true
	case HalfOpen:
		// One trial at a time.
		return false
	default:
		return true
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Closed {
		b.log.Info("breaker_closed", slog.String("name", b.name), slog.String("from", b.state.String()))
	}
	b.failures = 0
	b.setState(Closed)
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == HalfOpen || b.failures >= b.cfg.MaxFailures {
		b.openedAt = b.now()
		b.setState(Open)
		b.log.Error("breaker_opened", slog.String("name", b.name), slog.Int("failures", b.failures), slog.Any("err", err))
		return
	}
	b.log.Warn("breaker_failure", slog.String("name", b.name), slog.Int("failures", b.failures), slog.Any("err", err))
}

// setState must be called with mu held.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onChange != nil {
		b.onChange(s)
	}
}

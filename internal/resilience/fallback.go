package resilience

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
)

// ErrAllFailed wraps the last error once every member of a multi-member
// [FallbackGroup] failed or was skipped.
var ErrAllFailed = errors.New("all providers failed")

type FallbackConfig struct {
	// CircuitBreaker is copied for each member with Name set to the member
	// name.
	CircuitBreaker CircuitBreakerConfig

	// ShouldFailover decides whether an error moves on to the next member.
	// Errors it rejects are returned unwrapped. Nil fails over on anything but
	// context cancellation and deadline expiry.
	ShouldFailover func(error) bool

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

type member[T any] struct {
	name string
	v    T
	cb   *CircuitBreaker
}

// FallbackGroup holds interchangeable backends in preference order, each
// behind its own breaker. Members must all be added before the group is used
// concurrently.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.ShouldFailover == nil {
		cfg.ShouldFailover = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

func (fg *FallbackGroup[T]) AddFallback(name string, v T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	fg.members = append(fg.members, member[T]{name: name, v: v, cb: NewCircuitBreaker(cb)})
}

// Names lists members in failover order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, 0, len(fg.members))
	for name := range fg.All() {
		out = append(out, name)
	}
	return out
}

// All yields name and backend of every member in failover order.
func (fg *FallbackGroup[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, m := range fg.members {
			if !yield(m.name, m.v) {
				return
			}
		}
	}
}

// Primary is the first member.
func (fg *FallbackGroup[T]) Primary() T { return fg.members[0].v }

// Available returns an error wrapping [ErrCircuitOpen] when every member's
// breaker is open, i.e. the next call would be rejected without reaching any
// backend. A breaker past its reset timeout counts as available.
func (fg *FallbackGroup[T]) Available() error {
	for _, m := range fg.members {
		if m.cb.State() != StateOpen {
			return nil
		}
	}
	return fmt.Errorf("%w: %d of %d providers", ErrCircuitOpen, len(fg.members), len(fg.members))
}

func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) { return struct{}{}, fn(v) })
	return err
}

// ExecuteWithResult runs fn against the members in order and returns the
// first success. Members with an open breaker are skipped without a call.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	var last error
	for i, m := range fg.members {
		var out R
		err := m.cb.Execute(func() (err error) {
			out, err = fn(m.v)
			return err
		})
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, ErrCircuitOpen):
			fg.cfg.Logger.Debug("provider skipped, circuit open", "provider", m.name)
			if last == nil {
				last = err
			}
			continue
		case !fg.cfg.ShouldFailover(err):
			return zero, err
		}
		last = err
		if i+1 < len(fg.members) {
			fg.cfg.Logger.Warn("provider failed, failing over", "provider", m.name, "next", fg.members[i+1].name, "err", err)
		}
	}
	if len(fg.members) == 1 {
		return zero, last
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, last)
}

// Package strategy contains the signal generators. Each fund runs exactly one
// strategy; strategies read the analytics store and the book cache, and emit
// signals into the fund's queue through an Emitter. They never touch the
// gateway directly.
package strategy

import (
	"context"
	"time"

	"github.com/psifund/fundbot/internal/domain"
)

// Emitter accepts signals produced by a strategy. The orchestrator's emitter
// applies the fund's anti-front-running delay and bumps the emitted counter;
// a full queue is reported as domain.ErrQueueFull.
type Emitter interface {
	Emit(ctx context.Context, sig domain.Signal) error
}

// EmitFunc adapts a function to the Emitter interface.
type EmitFunc func(ctx context.Context, sig domain.Signal) error

// Emit calls f.
func (f EmitFunc) Emit(ctx context.Context, sig domain.Signal) error {
	return f(ctx, sig)
}

// Strategy is one fund's signal generator. Poll runs on the fund's poll
// interval; Maintenance runs on a slower cadence for housekeeping such as
// settlement. ResetHighwater is invoked after a backwards clock jump so the
// strategy re-anchors its poll window instead of querying a negative range.
type Strategy interface {
	Name() string
	Poll(ctx context.Context, now time.Time) error
	Maintenance(ctx context.Context, now time.Time) error
	ResetHighwater(now time.Time)
}

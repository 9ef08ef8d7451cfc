// Package liveness blocks until a host answers a reachability probe.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnreachable is returned when a host stays unreachable past the gate's
// timeout.
var ErrUnreachable = errors.New("host unreachable")

// Prober reports whether a host currently answers.
type Prober interface {
	Probe(ctx context.Context, host string) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, host string) bool

func (f ProberFunc) Probe(ctx context.Context, host string) bool { return f(ctx, host) }

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Gate polls a Prober at a fixed interval until the host is reachable.
type Gate struct {
	Prober   Prober
	Interval time.Duration
	// Timeout bounds the total wait. Zero waits until ctx is done.
	Timeout time.Duration
	Log     zerolog.Logger
	Sleep   SleepFunc
	Now     func() time.Time
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Wait blocks until host is reachable. Every failed probe is followed by
// one sleep of Interval, shortened to whatever is left of Timeout.
func (g *Gate) Wait(ctx context.Context, host string) error {
	sleep := g.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	var deadline time.Time
	if g.Timeout > 0 {
		deadline = g.now().Add(g.Timeout)
	}

	for waits := 0; ; waits++ {
		if g.Prober.Probe(ctx, host) {
			if waits > 0 {
				g.Log.Info().Str("host", host).Int("waits", waits).Msg("host reachable again")
			}
			return nil
		}
		wait := g.Interval
		if !deadline.IsZero() {
			left := deadline.Sub(g.now())
			if left <= 0 {
				return fmt.Errorf("%s after %s: %w", host, g.Timeout, ErrUnreachable)
			}
			wait = min(wait, left)
		}
		g.Log.Warn().Str("host", host).Dur("retry_in", wait).Msg("host not reachable, waiting")
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("waiting for %s: %w", host, err)
		}
	}
}

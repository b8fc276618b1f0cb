// Package prober fetches room metadata from the transport with bounded
// per-attempt timeouts and a retry budget for transient failures.
package prober

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"keyword_bot/internal/model"
)

// MetadataSource is the transport's on-demand room metadata call.
// It returns an error matching model.ErrUnreachable when the watcher is no
// longer in the room; any other error is treated as transient.
type MetadataSource interface {
	GetRoomMetadata(ctx context.Context, roomID int64) (model.RoomMetadata, error)
}

// Options tune the probe policy.
type Options struct {
	// Timeout bounds a single metadata call.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries uint64
	// Backoff is the base delay of the exponential backoff between attempts.
	Backoff time.Duration
	// MaxBackoff caps a single backoff delay.
	MaxBackoff time.Duration
	// ExhaustedIsUnreachable reports a retry budget exhausted by attempt
	// timeouts as unreachable instead of transient. Budgets that ran out on
	// any other failure stay transient.
	ExhaustedIsUnreachable bool
	// ConfirmUnreachable retries definitive unreachable answers through the
	// same budget before reporting them.
	ConfirmUnreachable bool
}

// DefaultOptions returns the production probe policy.
func DefaultOptions() Options {
	return Options{
		Timeout:                10 * time.Second,
		Retries:                3,
		Backoff:                time.Second,
		MaxBackoff:             30 * time.Second,
		ExhaustedIsUnreachable: true,
	}
}

// Prober wraps a MetadataSource with the probe policy.
type Prober struct {
	source MetadataSource
	opts   Options
}

// New creates a Prober.
func New(source MetadataSource, opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultOptions().Backoff
	}
	return &Prober{source: source, opts: opts}
}

// Probe fetches the current metadata of a room.
//
// The returned error matches model.ErrUnreachable when the room is definitively
// gone (or every attempt timed out and ExhaustedIsUnreachable is set), and
// model.ErrTransient otherwise. A *model.MovedError from the source is passed
// through untouched.
func (p *Prober) Probe(ctx context.Context, roomID int64) (model.RoomMetadata, error) {
	var meta model.RoomMetadata

	backoff := retry.WithMaxRetries(p.opts.Retries, retry.NewExponential(p.opts.Backoff))
	if p.opts.MaxBackoff > 0 {
		backoff = retry.WithCappedDuration(p.opts.MaxBackoff, backoff)
	}

	attempts := 0
	allTimedOut := true
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()

		m, err := p.source.GetRoomMetadata(attemptCtx, roomID)
		if err == nil {
			meta = m
			return nil
		}
		if !errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			allTimedOut = false
		}
		var moved *model.MovedError
		if errors.As(err, &moved) {
			return err
		}
		if errors.Is(err, model.ErrUnreachable) && !p.opts.ConfirmUnreachable {
			return err
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return meta, nil
	}

	if errors.Is(err, model.ErrUnreachable) {
		return model.RoomMetadata{}, err
	}
	if ctx.Err() != nil {
		return model.RoomMetadata{}, fmt.Errorf("probe room %d: %w: %w", roomID, model.ErrTransient, err)
	}
	if p.opts.ExhaustedIsUnreachable && allTimedOut {
		return model.RoomMetadata{}, fmt.Errorf("probe room %d after %d attempts: %w: %w", roomID, attempts, model.ErrUnreachable, err)
	}
	return model.RoomMetadata{}, fmt.Errorf("probe room %d after %d attempts: %w: %w", roomID, attempts, model.ErrTransient, err)
}

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const DefaultOpTimeout = 60 * time.Second

// ops carries what both engines share around a single operation: readiness,
// the per-operation deadline, error classification and failure logging.
type ops struct {
	log      zerolog.Logger
	timeout  time.Duration
	classify func(error) error
	now      func() time.Time
}

// today is the calendar date of new workouts, taken from the process clock
// so that both engines agree regardless of the database's own time zone.
func (o ops) today() time.Time {
	if o.now == nil {
		return dateOnly(time.Now())
	}
	return dateOnly(o.now())
}

func (o ops) run(ctx context.Context, ready bool, op string, keys map[string]any, fn func(context.Context) error) error {
	if !ready {
		err := fmt.Errorf("%s: %w", op, ErrNotReady)
		o.log.Warn().Str("op", op).Fields(keys).Msg("database not ready")
		return err
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		err = fmt.Errorf("%s: %w", op, o.kind(err))
		ev := o.log.Error()
		if errors.Is(err, ErrNotFound) {
			ev = o.log.Debug()
		}
		ev.Err(err).Str("op", op).Fields(keys).Msg("database operation failed")
		return err
	}
	return nil
}

func (o ops) kind(err error) error {
	switch {
	case errors.Is(err, ErrConstraint), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNotReady), errors.Is(err, ErrConnection):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if o.classify != nil {
		return o.classify(err)
	}
	return err
}

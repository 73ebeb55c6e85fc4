package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
)

// InTx runs fn in a transaction bounded by timeout and translates storage
// failures into the apperr taxonomy. *apperr.Error values returned by fn pass
// through unchanged. A timed-out transaction is rolled back and reported as
// transient.
func InTx(ctx context.Context, store Store, timeout time.Duration, op string, fn func(Tx) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return Classify(op, store.InTx(ctx, fn))
}

// Classify maps a storage error to an *apperr.Error.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, op, err, "")
	case errors.Is(err, ErrConflict):
		return apperr.Wrap(apperr.KindConflict, op, err, "concurrent change, re-read and retry")
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindTransient, op, err, "cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindTransient, op, err, "transaction timed out")
	default:
		return apperr.Wrap(apperr.KindTransient, op, err, "storage")
	}
}

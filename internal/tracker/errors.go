package tracker

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/jobtracker/internal/store"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrAlreadyFinished  = fmt.Errorf("%w: job already finished", ErrConflict)
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// translate maps store sentinels onto tracker errors. The store error stays
// in the chain for transient failures so callers can log the cause. Errors
// that already carry a tracker kind pass through unchanged.
func translate(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict),
		errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, store.ErrAlreadyFinished):
		return fmt.Errorf("%s: %w", op, ErrAlreadyFinished)
	case errors.Is(err, store.ErrDuplicateKey):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks transient backing-store failures: connection loss,
// auth problems, timeouts, failed transactions. Callers may retry with
// backoff. Permanent data failures surface as encoding.EncodingError or
// encoding.DecodingError instead.
var ErrUnavailable = errors.New("forecast store unavailable")

// ErrBadTimestamp is returned when an upload carries an unusable
// forecast_at or a non-positive TTL.
var ErrBadTimestamp = errors.New("invalid forecast timestamp")

// unavailable wraps a backing-store failure so errors.Is(err, ErrUnavailable)
// holds regardless of the underlying driver error.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// opErr maps an operation error, folding context expiry into the
// retryable-unavailable class so callers see one taxonomy.
func opErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return unavailable(op, ctxErr)
	}
	return unavailable(op, err)
}

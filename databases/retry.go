package databases

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/benefits-access-api/models"
)

// RetryAttempts bounds how many times a store-unavailable operation is attempted
const RetryAttempts = 3

// ErrUnavailable marks a failure of the store itself rather than of the request
var ErrUnavailable = errors.New("store unavailable")

// Unavailable reports whether err is a network or store-level failure that is worth retrying
func Unavailable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrUnavailable) || models.IsKind(err, models.KindStoreUnavailable) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel("TransientTransactionError") ||
			labeled.HasErrorLabel("UnknownTransactionCommitResult")
	}
	return false
}

// WithRetry runs op and retries it with a short exponential backoff while it fails with a store-level
// error. Any other error is returned immediately. A store-level error that survives every attempt is
// returned as a KindStoreUnavailable error.
func WithRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	res, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil && !Unavailable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(RetryAttempts))

	if err != nil && Unavailable(err) && !models.IsKind(err, models.KindStoreUnavailable) {
		return res, models.WrapKindError(models.KindStoreUnavailable, "the store could not be reached, try again", err)
	}
	return res, err
}

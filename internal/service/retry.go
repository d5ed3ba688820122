package service

import (
	"context"
	"errors"

	"github.com/iliyamo/storefront/internal/repository"
)

// readOnce runs an idempotent read, retrying it a single time when the
// first attempt fails with an error that is not a definite answer.
// Checkout never goes through here.
func readOnce[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !transient(ctx, err) {
		return v, err
	}
	return fn(ctx)
}

func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var se *Error
	return !errors.As(err, &se)
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.mongodb.org/mongo-driver/mongo"
)

// Server error codes that mean the credentials or permissions were rejected.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
	codeAtlasAuthFailed      = 8000
)

// classify wraps err with ErrUnauthorized or ErrUnreachable when it matches
// one of those conditions, with fallback otherwise (when non-nil).
func classify(err error, fallback error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnreachable):
		return err
	case isUnauthorized(err):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case isUnreachable(err):
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	case fallback != nil:
		return fmt.Errorf("%w: %w", fallback, err)
	default:
		return err
	}
}

func isUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(codeUnauthorized) ||
			se.HasErrorCode(codeAuthenticationFailed) ||
			se.HasErrorCode(codeAtlasAuthFailed)
	}
	return false
}

func isUnreachable(err error) bool {
	if errors.Is(err, ErrUnreachable) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

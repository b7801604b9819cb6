package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

// defaultRetryAfter is used when the API reports a rate limit without a
// usable retry hint.
const defaultRetryAfter = time.Second

// WrapError normalizes Google API errors into domain errors so the
// rate-limited client can classify them. Google reports rate limits
// either as 429 or as 403 with a rateLimitExceeded reason.
func WrapError(serviceID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		// Transport-level failures are retryable.
		return domain.Transient(err)
	}

	switch {
	case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
		return fmt.Errorf("google: %s: %w", gerr.Message, domain.ErrNotFound)
	case gerr.Code == http.StatusTooManyRequests:
		return &domain.RateLimitError{ServiceID: serviceID, RetryAfter: defaultRetryAfter}
	case gerr.Code == http.StatusForbidden && isRateLimitReason(gerr):
		return &domain.RateLimitError{ServiceID: serviceID, RetryAfter: defaultRetryAfter}
	case gerr.Code >= 500:
		return domain.Transient(err)
	default:
		return err
	}
}

func isRateLimitReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jomei/notionapi"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// defaultRetryAfter is used when the API reports a rate limit. The
// client library does not surface the Retry-After header, and Notion's
// public budget averages three requests per second.
const defaultRetryAfter = time.Second

// mapError normalizes API errors into domain errors so the rate-limited
// client can classify them.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusNotFound || apiErr.Code == "object_not_found":
			return fmt.Errorf("notion: %s: %w", apiErr.Message, domain.ErrNotFound)
		case apiErr.Status == http.StatusTooManyRequests || apiErr.Code == "rate_limited":
			return &domain.RateLimitError{ServiceID: driven.ServiceNotion, RetryAfter: defaultRetryAfter}
		case apiErr.Status >= 500:
			return domain.Transient(err)
		default:
			return err
		}
	}

	// Transport-level failures are retryable.
	return domain.Transient(err)
}

package google

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(driven.ServiceCalendar, nil))

	notFound := WrapError(driven.ServiceCalendar, &googleapi.Error{Code: 404, Message: "missing"})
	assert.ErrorIs(t, notFound, domain.ErrNotFound)

	gone := WrapError(driven.ServiceCalendar, &googleapi.Error{Code: 410})
	assert.ErrorIs(t, gone, domain.ErrNotFound)

	limited := WrapError(driven.ServiceCalendar, &googleapi.Error{Code: 429})
	var rle *domain.RateLimitError
	require.ErrorAs(t, limited, &rle)
	assert.Equal(t, driven.ServiceCalendar, rle.ServiceID)

	quotaForbidden := WrapError(driven.ServiceCalendar, &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}},
	})
	assert.ErrorAs(t, quotaForbidden, &rle)

	plainForbidden := &googleapi.Error{Code: 403, Message: "insufficient permissions"}
	assert.Equal(t, error(plainForbidden), WrapError(driven.ServiceCalendar, plainForbidden))

	assert.True(t, domain.IsTransient(WrapError(driven.ServiceCalendar, &googleapi.Error{Code: 503})))
	assert.True(t, domain.IsTransient(WrapError(driven.ServiceCalendar, errors.New("connection reset"))))

	assert.Equal(t, context.Canceled, WrapError(driven.ServiceCalendar, context.Canceled))
}

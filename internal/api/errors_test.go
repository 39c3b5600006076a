package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/npezzotti/go-notify/internal/apperr"
	"github.com/npezzotti/go-notify/internal/sms"
	"github.com/stretchr/testify/assert"
)

func TestToApiError(t *testing.T) {
	tcases := []struct {
		name       string
		err        error
		statusCode int
		field      string
	}{
		{
			name:       "validation",
			err:        apperr.Validation("title", "title is required"),
			statusCode: http.StatusBadRequest,
			field:      "title",
		},
		{
			name:       "not found",
			err:        apperr.NotFound("channel not found"),
			statusCode: http.StatusNotFound,
		},
		{
			name:       "conflict",
			err:        apperr.Conflict("identifier", "identifier belongs to another channel", nil),
			statusCode: http.StatusConflict,
			field:      "identifier",
		},
		{
			name:       "forbidden",
			err:        apperr.Forbidden("not the channel owner"),
			statusCode: http.StatusForbidden,
		},
		{
			name:       "aborted transaction",
			err:        apperr.Aborted("create message: transaction aborted", errors.New("boom")),
			statusCode: http.StatusInternalServerError,
		},
		{
			name:       "aborted without recipients",
			err:        apperr.Aborted("sms not sent", sms.ErrNoRecipients),
			statusCode: http.StatusInternalServerError,
		},
		{
			name:       "aborted by sms provider",
			err:        apperr.Aborted("sms not sent", &sms.DeliveryError{StatusCode: 500, Message: "down"}),
			statusCode: http.StatusBadGateway,
		},
		{
			name:       "unavailable",
			err:        apperr.Unavailable("datastore unavailable", errors.New("conn refused")),
			statusCode: http.StatusServiceUnavailable,
		},
		{
			name:       "wrapped kind",
			err:        fmt.Errorf("handler: %w", apperr.NotFound("message not found")),
			statusCode: http.StatusNotFound,
		},
		{
			name:       "unclassified",
			err:        errors.New("unexpected"),
			statusCode: http.StatusInternalServerError,
		},
		{
			name:       "api error passes through",
			err:        NewUnauthorizedError(),
			statusCode: http.StatusUnauthorized,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := toApiError(tc.err)
			assert.Equal(t, tc.statusCode, apiErr.StatusCode)
			assert.Equal(t, tc.field, apiErr.Field)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestApiError_Error(t *testing.T) {
	err := NewInternalServerError(errors.New("db down"))
	assert.Equal(t, "internal server error: db down", err.Error())
	assert.ErrorContains(t, err.Unwrap(), "db down")

	assert.Equal(t, "not found", NewNotFoundError().Error())
}

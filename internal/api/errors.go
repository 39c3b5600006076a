package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-notify/internal/apperr"
	"github.com/npezzotti/go-notify/internal/sms"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(statusCode int, err error) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    lower(http.StatusText(statusCode)),
		Err:        err,
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, nil)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound, nil)
}

func NewInternalServerError(err error) *ApiError {
	return newApiError(http.StatusInternalServerError, err)
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized, nil)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden, nil)
}

func NewBadGatewayError(err error) *ApiError {
	return newApiError(http.StatusBadGateway, err)
}

func NewServiceUnavailableError(err error) *ApiError {
	return newApiError(http.StatusServiceUnavailable, err)
}

// NewFieldError reports a problem with one request field.
func NewFieldError(statusCode int, field, message string) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    message,
		Field:      field,
	}
}

// toApiError maps an error from the projection, sync and storage layers onto
// its HTTP representation.
func toApiError(err error) *ApiError {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return NewInternalServerError(err)
	}

	switch appErr.Kind {
	case apperr.KindValidation:
		return NewFieldError(http.StatusBadRequest, appErr.Field, appErr.Message)
	case apperr.KindNotFound:
		return NewNotFoundError()
	case apperr.KindConflict:
		return NewFieldError(http.StatusConflict, appErr.Field, appErr.Message)
	case apperr.KindForbidden:
		return NewForbiddenError()
	case apperr.KindAborted:
		if sms.IsDeliveryError(err) {
			return NewBadGatewayError(err)
		}
		return NewInternalServerError(err)
	case apperr.KindUnavailable:
		return NewServiceUnavailableError(err)
	}
	return NewInternalServerError(err)
}

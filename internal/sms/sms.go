// Package sms delivers outbound text notifications to channel members.
package sms

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoRecipients is returned when none of the channel's members has a phone
// number on file.
var ErrNoRecipients = errors.New("no channel member has a phone number")

type Sender interface {
	Send(ctx context.Context, phoneNumbers []string, text string) error
}

// DeliveryError reports a failed dispatch to the SMS provider.
type DeliveryError struct {
	// StatusCode is the provider's HTTP status, zero for transport failures.
	StatusCode int
	Message    string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sms delivery failed: status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("sms delivery failed: %s: %v", e.Message, e.Err)
	}
	return "sms delivery failed: " + e.Message
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsDeliveryError reports whether err was caused by a failed dispatch.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

type disabledSender struct{}

// Disabled returns a Sender that rejects every dispatch. It stands in when no
// provider is configured so sms_enabled requests fail instead of silently
// skipping delivery.
func Disabled() Sender {
	return disabledSender{}
}

func (disabledSender) Send(ctx context.Context, phoneNumbers []string, text string) error {
	return &DeliveryError{Message: "sms not configured"}
}

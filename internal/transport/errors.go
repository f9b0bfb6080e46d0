package transport

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a failed delivery.
type FailureKind string

const (
	FailureForbidden   FailureKind = "forbidden"    // recipient blocked the bot
	FailureBadRequest  FailureKind = "bad_request"  // chat gone / deactivated
	FailureRateLimited FailureKind = "rate_limited" // retry signal from the API
	FailureOther       FailureKind = "other"
)

type DeliveryError struct {
	Kind        FailureKind
	Code        int
	Description string
	RetryAfter  time.Duration
	Err         error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Description
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("telegram %s (%d): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("telegram %s: %s", e.Kind, msg)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err. Unclassified errors are
// FailureOther; nil is "".
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var de *DeliveryError
	if errors.As(err, &de) && de.Kind != "" {
		return de.Kind
	}
	return FailureOther
}

// RetryAfterOf returns the retry hint carried by a rate-limited error.
func RetryAfterOf(err error) (time.Duration, bool) {
	var de *DeliveryError
	if errors.As(err, &de) && de.Kind == FailureRateLimited {
		return de.RetryAfter, true
	}
	return 0, false
}

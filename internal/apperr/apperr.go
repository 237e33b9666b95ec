// Package apperr defines the checkout error taxonomy and its classification
// into stable kinds and HTTP status codes.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kinds returned by Kind.
const (
	KindValidation       = "validation"
	KindSubmission       = "submission"
	KindConfirmation     = "confirmation"
	KindRedirectRecovery = "redirect_recovery"
	KindBusy             = "busy"
	KindStepNotReachable = "step_not_reachable"
	KindStale            = "stale"
	KindNotFound         = "not_found"
	KindAlreadySubmitted = "already_submitted"
	KindTooManyAttempts  = "too_many_attempts"
	KindTimeout          = "timeout"
	KindCanceled         = "canceled"
	KindInternal         = "internal"
)

var (
	ErrSubmitInFlight   = errors.New("a submission is already in flight")
	ErrStepNotReachable = errors.New("step not reachable")
	ErrStaleResult      = errors.New("result superseded by navigation")
	ErrSessionNotFound  = errors.New("checkout session not found")
	ErrNotFound         = errors.New("not found")
	ErrAlreadySubmitted = errors.New("checkout already submitted")
	ErrTooManyAttempts  = errors.New("too many charge attempts")
)

// ValidationError is a user-fixable problem local to one step.
type ValidationError struct {
	Step    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Step, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

func (e *ValidationError) Kind() string { return KindValidation }

// Validation builds a ValidationError.
func Validation(step, field, msg string) *ValidationError {
	return &ValidationError{Step: step, Field: field, Message: msg}
}

// SubmissionError means the order service rejected order creation. No order
// exists afterwards.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission failed: %s: %v", e.Message, e.Err)
	}
	return "submission failed: " + e.Message
}

func (e *SubmissionError) Kind() string  { return KindSubmission }
func (e *SubmissionError) Unwrap() error { return e.Err }

// ConfirmationError means an order exists but its payment did not complete.
// Retrying reuses OrderID.
type ConfirmationError struct {
	OrderID string
	Message string
	Err     error
}

func (e *ConfirmationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("confirmation failed for order %s: %s: %v", e.OrderID, e.Message, e.Err)
	}
	return fmt.Sprintf("confirmation failed for order %s: %s", e.OrderID, e.Message)
}

func (e *ConfirmationError) Kind() string  { return KindConfirmation }
func (e *ConfirmationError) Unwrap() error { return e.Err }

// RedirectRecoveryError is raised after a provider redirect returned with a
// failure. RedirectURL points back into the Payment step, rebuilt from the
// order's durable data.
type RedirectRecoveryError struct {
	OrderID     string
	Message     string
	RedirectURL string
}

func (e *RedirectRecoveryError) Error() string {
	return fmt.Sprintf("payment for order %s failed after redirect: %s", e.OrderID, e.Message)
}

func (e *RedirectRecoveryError) Kind() string { return KindRedirectRecovery }

// kinder is satisfied by domain errors that carry a classification kind.
type kinder interface {
	Kind() string
}

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, ErrSubmitInFlight):
		return KindBusy
	case errors.Is(err, ErrStepNotReachable):
		return KindStepNotReachable
	case errors.Is(err, ErrStaleResult):
		return KindStale
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadySubmitted):
		return KindAlreadySubmitted
	case errors.Is(err, ErrTooManyAttempts):
		return KindTooManyAttempts
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// kindToStatus maps error classification kinds to HTTP status codes.
var kindToStatus = map[string]int{
	KindValidation:       http.StatusUnprocessableEntity,
	KindSubmission:       http.StatusBadGateway,
	KindConfirmation:     http.StatusPaymentRequired,
	KindRedirectRecovery: http.StatusSeeOther,
	KindBusy:             http.StatusConflict,
	KindStepNotReachable: http.StatusConflict,
	KindStale:            http.StatusConflict,
	KindNotFound:         http.StatusNotFound,
	KindAlreadySubmitted: http.StatusConflict,
	KindTooManyAttempts:  http.StatusTooManyRequests,
	KindTimeout:          http.StatusGatewayTimeout,
	KindCanceled:         http.StatusRequestTimeout,
}

// HTTPStatus returns the status code a transport should use for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Message returns the human-readable part of a classified error, suitable
// for showing at the top of a step.
func Message(err error) string {
	var (
		v *ValidationError
		s *SubmissionError
		c *ConfirmationError
		r *RedirectRecoveryError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &v):
		return v.Message
	case errors.As(err, &s):
		return s.Message
	case errors.As(err, &c):
		return c.Message
	case errors.As(err, &r):
		return r.Message
	default:
		return err.Error()
	}
}

package service

import (
	"errors"
	"fmt"

	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/repository"
	"fiftybrains/delivery/internal/workflow"
)

type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindPolicyDenied Kind = "POLICY_DENIED"
	KindConflict     Kind = "CONFLICT"
	KindNotFound     Kind = "NOT_FOUND"
	KindForbidden    Kind = "FORBIDDEN"
	KindInvalidState Kind = "INVALID_STATE"
	KindTransfer     Kind = "TRANSFER"
)

// Error is returned for every failure the caller can act on. Anything else
// coming out of a service is an infrastructure error.
type Error struct {
	Kind    Kind
	Reason  workflow.Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrConflict) works
// for any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrPolicyDenied = &Error{Kind: KindPolicyDenied}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrTransfer     = &Error{Kind: KindTransfer}
)

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

func notFound(message string, err error) error {
	return &Error{Kind: KindNotFound, Message: message, Err: err}
}

func policyDenied(e workflow.Eligibility) error {
	return &Error{Kind: KindPolicyDenied, Reason: e.Reason, Message: e.Message}
}

func transferError(message string, err error) error {
	return &Error{Kind: KindTransfer, Message: message, Err: err}
}

// translate maps ledger and workflow sentinels onto the taxonomy. Unknown
// errors pass through untouched.
func translate(err error) error {
	var svcErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &svcErr):
		return err
	case errors.Is(err, repository.ErrGigNotFound):
		return notFound("gig not found", err)
	case errors.Is(err, repository.ErrApplicationNotFound):
		return notFound("application not found", err)
	case errors.Is(err, repository.ErrDeliveryNotFound):
		return notFound("delivery not found", err)
	case errors.Is(err, repository.ErrApplicationNotApproved):
		return &Error{Kind: KindForbidden, Message: "application is not approved for uploads", Err: err}
	case errors.Is(err, repository.ErrPendingExists):
		return &Error{Kind: KindConflict, Message: "another delivery was submitted at the same time, refresh and try again", Err: err}
	case errors.Is(err, repository.ErrApprovedLimit):
		return &Error{Kind: KindPolicyDenied, Reason: workflow.ReasonLimitReached, Message: "maximum approved deliveries reached", Err: err}
	case errors.Is(err, repository.ErrFileKeyInUse):
		return &Error{Kind: KindValidation, Message: "a file is already part of another delivery, upload the file again", Err: err}
	case errors.Is(err, workflow.ErrNotPending):
		return &Error{Kind: KindInvalidState, Message: "delivery has already been reviewed", Err: err}
	case errors.Is(err, workflow.ErrInvalidDecision),
		errors.Is(err, workflow.ErrRatingRequired),
		errors.Is(err, workflow.ErrRatingOutOfRange),
		errors.Is(err, workflow.ErrFeedbackRequired),
		errors.Is(err, models.ErrInvalidDeliverable):
		return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	}
	return err
}

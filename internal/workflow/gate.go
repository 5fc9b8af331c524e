// Package workflow holds the delivery workflow policy: the upload gate
// decision, review transitions and version retention planning. It has no
// I/O; both ledger implementations and the services call into it.
package workflow

import (
	"fmt"

	"fiftybrains/delivery/internal/models"
)

type Reason string

const (
	ReasonPendingDelivery Reason = "PENDING_DELIVERY"
	ReasonLimitReached    Reason = "LIMIT_REACHED"
)

type Limits struct {
	// ApprovedCap is the number of approved deliveries after which the
	// gate stops accepting uploads.
	ApprovedCap int
	// RetentionCap is the number of versions kept per application.
	RetentionCap int
}

func DefaultLimits() Limits {
	return Limits{ApprovedCap: 2, RetentionCap: 3}
}

type Eligibility struct {
	CanUpload         bool
	Reason            Reason
	Message           string
	NextVersionNumber int
}

// Decide evaluates the gate rules in order: a pending delivery blocks
// first, then the approved cap.
func Decide(state models.LedgerState, limits Limits) Eligibility {
	next := state.LastVersion + 1

	if state.Pending {
		return Eligibility{
			Reason:            ReasonPendingDelivery,
			Message:           "wait for brand review before uploading a new version",
			NextVersionNumber: next,
		}
	}

	if state.ApprovedCount >= limits.ApprovedCap {
		return Eligibility{
			Reason:            ReasonLimitReached,
			Message:           fmt.Sprintf("maximum approved deliveries reached (%d of %d)", state.ApprovedCount, limits.ApprovedCap),
			NextVersionNumber: next,
		}
	}

	retained := min(state.Retained+1, limits.RetentionCap)
	return Eligibility{
		CanUpload:         true,
		Message:           fmt.Sprintf("ready to upload version %d (%d of %d stored versions)", next, retained, limits.RetentionCap),
		NextVersionNumber: next,
	}
}

package workflow

import (
	"errors"
	"strings"
	"time"

	"fiftybrains/delivery/internal/models"
)

var (
	ErrNotPending       = errors.New("delivery is not pending review")
	ErrInvalidDecision  = errors.New("review status must be APPROVED, REJECTED or REVISION")
	ErrRatingRequired   = errors.New("rating is required to approve a delivery")
	ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")
	ErrFeedbackRequired = errors.New("feedback is required")
)

const (
	MinRating = 1
	MaxRating = 5
)

// ValidateDecision checks the per-status requirements of a review decision.
func ValidateDecision(decision models.ReviewDecision) error {
	switch decision.Status {
	case models.DeliveryStatusApproved:
		if decision.Rating == nil {
			return ErrRatingRequired
		}
		if *decision.Rating < MinRating || *decision.Rating > MaxRating {
			return ErrRatingOutOfRange
		}
	case models.DeliveryStatusRejected, models.DeliveryStatusRevision:
		if strings.TrimSpace(decision.Feedback) == "" {
			return ErrFeedbackRequired
		}
	default:
		return ErrInvalidDecision
	}
	return nil
}

// ApplyReview moves a PENDING delivery to the decided status. The input is
// not modified. Ratings are only kept on approvals.
func ApplyReview(d models.Delivery, decision models.ReviewDecision, now time.Time) (models.Delivery, error) {
	if d.Status != models.DeliveryStatusPending {
		return d, ErrNotPending
	}
	if err := ValidateDecision(decision); err != nil {
		return d, err
	}

	out := d
	out.Status = decision.Status
	out.Rating = nil
	out.Feedback = nil

	if decision.Status == models.DeliveryStatusApproved {
		rating := *decision.Rating
		out.Rating = &rating
	}
	if feedback := strings.TrimSpace(decision.Feedback); feedback != "" {
		out.Feedback = &feedback
	}

	reviewedAt := now.UTC()
	out.ReviewedAt = &reviewedAt
	return out, nil
}

// CountsTowardApprovedCap reports whether a reviewed delivery in this status
// uses up one of the application's approved slots. REVISION is treated
// like REJECTED.
func CountsTowardApprovedCap(status models.DeliveryStatus) bool {
	return status == models.DeliveryStatusApproved
}

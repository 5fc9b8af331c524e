package repository

import (
	"errors"
	"time"

	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/workflow"
)

var (
	ErrGigNotFound            = errors.New("gig not found")
	ErrApplicationNotFound    = errors.New("application not found")
	ErrApplicationNotApproved = errors.New("application is not approved")
	ErrDeliveryNotFound       = errors.New("delivery not found")
	ErrPendingExists          = errors.New("a delivery is already pending for this application")
	ErrApprovedLimit          = errors.New("approved delivery limit reached")
	ErrFileKeyInUse           = errors.New("file key is already used by another delivery")
)

type RecordDeliveryInput struct {
	ApplicationID string
	Title         string
	Description   string
	Notes         string
	Files         []models.FileDescriptor
	Deliverables  []models.Deliverable
	SubmittedAt   time.Time
	Limits        workflow.Limits
}

// FileKeyError names the object key that RecordDelivery refused.
type FileKeyError struct {
	Key string
}

func (e *FileKeyError) Error() string {
	return ErrFileKeyInUse.Error() + ": " + e.Key
}

func (e *FileKeyError) Unwrap() error { return ErrFileKeyInUse }

// firstReusedKey returns the first submitted key already claimed by a
// stored delivery or still waiting to be purged.
func firstReusedKey(files []models.FileDescriptor, existing []models.Delivery, tombstoned func(string) bool) (string, bool) {
	used := make(map[string]struct{})
	for _, d := range existing {
		for _, key := range d.FileKeys() {
			used[key] = struct{}{}
		}
	}
	for _, f := range files {
		if _, ok := used[f.Key]; ok {
			return f.Key, true
		}
		if tombstoned(f.Key) {
			return f.Key, true
		}
	}
	return "", false
}

type RecordDeliveryResult struct {
	Delivery models.Delivery
	Evicted  []models.Delivery
}

package models

import "time"

type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"
	ApplicationStatusApproved  ApplicationStatus = "approved"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
	ApplicationStatusWithdrawn ApplicationStatus = "withdrawn"
)

type Gig struct {
	ID        string
	BrandID   string
	Title     string
	CreatedAt time.Time
}

// Application is a creator's engagement on a gig. LastVersion and
// ApprovedTotal are history-wide counters and never decrease, even when
// old deliveries are evicted.
type Application struct {
	ID            string
	GigID         string
	CreatorID     string
	Status        ApplicationStatus
	LastVersion   int
	ApprovedTotal int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (a Application) CanUpload() bool {
	return a.Status == ApplicationStatusApproved
}

// LedgerState is the per-application snapshot the upload gate decides on.
type LedgerState struct {
	Pending       bool
	ApprovedCount int
	LastVersion   int
	Retained      int
}

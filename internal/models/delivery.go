package models

import (
	"time"

	"github.com/dustin/go-humanize"
)

type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "PENDING"
	DeliveryStatusApproved DeliveryStatus = "APPROVED"
	DeliveryStatusRejected DeliveryStatus = "REJECTED"
	DeliveryStatusRevision DeliveryStatus = "REVISION"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusApproved, DeliveryStatusRejected, DeliveryStatusRevision:
		return true
	}
	return false
}

type FileDescriptor struct {
	Key       string
	Name      string
	SizeBytes int64
	MIMEType  string
}

func (f FileDescriptor) HumanSize() string {
	return humanize.Bytes(uint64(max(f.SizeBytes, 0)))
}

type Delivery struct {
	ID            string
	ApplicationID string
	GigID         string
	Version       int
	Title         string
	Description   string
	Notes         string
	Files         []FileDescriptor
	Deliverables  []Deliverable
	Status        DeliveryStatus
	Feedback      *string
	Rating        *int
	SubmittedAt   time.Time
	ReviewedAt    *time.Time
}

func (d Delivery) FileKeys() []string {
	keys := make([]string, 0, len(d.Files))
	for _, f := range d.Files {
		keys = append(keys, f.Key)
	}
	return keys
}

// ReviewDecision is the brand's verdict on a pending delivery.
type ReviewDecision struct {
	Status   DeliveryStatus
	Rating   *int
	Feedback string
}

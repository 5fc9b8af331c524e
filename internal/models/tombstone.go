package models

import "time"

// StorageTombstone records an object whose ledger row was evicted but
// whose bytes may still be in the bucket.
type StorageTombstone struct {
	Key        string
	DeliveryID string
	CreatedAt  time.Time
}

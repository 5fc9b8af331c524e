package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Purger removes objects of evicted deliveries that could not be deleted
// when the eviction happened.
type Purger struct {
	ledger TombstoneLedger
	store  ObjectRemover
	grace  time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

// NewPurger skips tombstones younger than grace so it does not race the
// removal done inline by Submit.
func NewPurger(ledger TombstoneLedger, store ObjectRemover, grace time.Duration, log zerolog.Logger) *Purger {
	return &Purger{
		ledger: ledger,
		store:  store,
		grace:  grace,
		log:    log,
		now:    time.Now,
	}
}

// Purge handles up to limit tombstones and returns how many were cleared.
// Failed removals are logged and retried on the next run.
func (p *Purger) Purge(ctx context.Context, limit int) (int, error) {
	tombstones, err := p.ledger.ListTombstones(ctx, p.now().Add(-p.grace), limit)
	if err != nil {
		return 0, fmt.Errorf("list tombstones: %w", err)
	}

	removed := make([]string, 0, len(tombstones))
	for _, t := range tombstones {
		if err := p.store.Remove(ctx, t.Key); err != nil {
			p.log.Warn().Err(err).Str("key", t.Key).Str("delivery_id", t.DeliveryID).Msg("purge object failed")
			continue
		}
		removed = append(removed, t.Key)
	}

	if len(removed) > 0 {
		if err := p.ledger.DeleteTombstones(ctx, removed); err != nil {
			return 0, fmt.Errorf("delete tombstones: %w", err)
		}
	}
	return len(removed), nil
}

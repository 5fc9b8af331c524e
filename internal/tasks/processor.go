package tasks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fiftybrains/delivery/internal/notify"
	"fiftybrains/delivery/internal/queue"
)

// Purger is implemented by service.Purger.
type Purger interface {
	Purge(ctx context.Context, limit int) (int, error)
}

type Processor struct {
	logger     zerolog.Logger
	notifier   notify.Notifier
	purger     Purger
	purgeBatch int
}

func NewProcessor(logger zerolog.Logger, notifier notify.Notifier, purger Purger, purgeBatch int) *Processor {
	if purgeBatch <= 0 {
		purgeBatch = 100
	}
	return &Processor{
		logger:     logger,
		notifier:   notifier,
		purger:     purger,
		purgeBatch: purgeBatch,
	}
}

// Handle dispatches one stream message. Malformed and unknown messages are
// logged and acknowledged so they do not block the group.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := queue.DecodeTask(msg)
	if err != nil {
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping malformed task")
		return nil
	}

	switch task.Type {
	case queue.TaskDeliverySubmitted, queue.TaskDeliveryReviewed:
		return p.handleNotify(ctx, task)
	case queue.TaskStoragePurge:
		return p.handlePurge(ctx)
	default:
		p.logger.Warn().Str("type", task.Type).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleNotify(ctx context.Context, task queue.Task) error {
	err := p.notifier.Notify(ctx, notify.Event{
		Type:          task.Type,
		DeliveryID:    task.DeliveryID,
		ApplicationID: task.ApplicationID,
		GigID:         task.GigID,
		Version:       task.Version,
		Status:        task.Status,
		OccurredAt:    task.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("notify %s for %s: %w", task.Type, task.DeliveryID, err)
	}
	return nil
}

func (p *Processor) handlePurge(ctx context.Context) error {
	n, err := p.purger.Purge(ctx, p.purgeBatch)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	if n > 0 {
		p.logger.Info().Int("removed", n).Msg("purged evicted objects")
	}
	return nil
}

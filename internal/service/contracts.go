package service

import (
	"context"
	"time"

	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/queue"
	"fiftybrains/delivery/internal/repository"
	"fiftybrains/delivery/internal/storage"
)

// Ledger is implemented by repository.PostgresLedger and
// repository.MemoryLedger.
type Ledger interface {
	GetGig(ctx context.Context, id string) (models.Gig, error)
	GetApplication(ctx context.Context, id string) (models.Application, error)
	FindApplication(ctx context.Context, gigID string, creatorID string) (models.Application, error)
	State(ctx context.Context, applicationID string) (models.LedgerState, error)
	RecordDelivery(ctx context.Context, input repository.RecordDeliveryInput) (repository.RecordDeliveryResult, error)
	ListDeliveries(ctx context.Context, applicationID string) ([]models.Delivery, error)
	GetDelivery(ctx context.Context, id string) (models.Delivery, error)
	SaveReview(ctx context.Context, reviewed models.Delivery) (models.Delivery, error)
	TombstoneLedger
}

type TombstoneLedger interface {
	ListTombstones(ctx context.Context, olderThan time.Time, limit int) ([]models.StorageTombstone, error)
	DeleteTombstones(ctx context.Context, keys []string) error
}

type ObjectRemover interface {
	Remove(ctx context.Context, key string) error
}

// ObjectStorage is implemented by storage.ObjectStore.
type ObjectStorage interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
	ReadHead(ctx context.Context, key string, n int64) ([]byte, error)
	ObjectRemover
}

// EventPublisher is implemented by queue.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, task queue.Task) error
}

// SubmitGuard is implemented by cache.SubmitLocks.
type SubmitGuard interface {
	Acquire(ctx context.Context, applicationID string) (func(), error)
}

type noopGuard struct{}

func (noopGuard) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, queue.Task) error { return nil }

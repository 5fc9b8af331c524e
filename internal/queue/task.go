package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TaskDeliverySubmitted = "delivery.submitted"
	TaskDeliveryReviewed  = "delivery.reviewed"
	TaskStoragePurge      = "storage.purge"
)

const payloadField = "payload"

// Task is the envelope carried on the delivery stream.
type Task struct {
	Type          string    `json:"type"`
	DeliveryID    string    `json:"deliveryId,omitempty"`
	ApplicationID string    `json:"applicationId,omitempty"`
	GigID         string    `json:"gigId,omitempty"`
	Version       int       `json:"version,omitempty"`
	Status        string    `json:"status,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

var ErrMalformedTask = errors.New("malformed task")

func DecodeTask(msg redis.XMessage) (Task, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return Task{}, fmt.Errorf("%w: missing %s field", ErrMalformedTask, payloadField)
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}
	if task.Type == "" {
		return Task{}, fmt.Errorf("%w: empty type", ErrMalformedTask)
	}
	return task, nil
}

type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: 100_000}
}

func (p *Publisher) Publish(ctx context.Context, task Task) error {
	if task.OccurredAt.IsZero() {
		task.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":       task.Type,
			payloadField: string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

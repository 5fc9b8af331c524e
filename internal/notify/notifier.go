// Package notify delivers workflow events to the marketplace so it can
// inform creators and brands.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"fiftybrains/delivery/internal/security"
)

const (
	HeaderTimestamp = "X-Gig-Timestamp"
	HeaderEvent     = "X-Gig-Event"
)

type Event struct {
	Type          string    `json:"type"`
	DeliveryID    string    `json:"deliveryId"`
	ApplicationID string    `json:"applicationId"`
	GigID         string    `json:"gigId"`
	Version       int       `json:"version"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type WebhookNotifier struct {
	url    string
	key    []byte
	client *http.Client
}

func NewWebhookNotifier(url string, key []byte, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		key:    key,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event.Type)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(security.HeaderSignature, security.SignPayload(w.key, ts, body))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier is used when no webhook is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, event Event) error {
	l.logger.Info().
		Str("event", event.Type).
		Str("delivery_id", event.DeliveryID).
		Str("application_id", event.ApplicationID).
		Int("version", event.Version).
		Str("status", event.Status).
		Msg("delivery event")
	return nil
}

package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/queue"
	"fiftybrains/delivery/internal/workflow"
)

type ReviewService struct {
	ledger    Ledger
	publisher EventPublisher
	log       zerolog.Logger
	now       func() time.Time
}

func NewReviewService(ledger Ledger, publisher EventPublisher, log zerolog.Logger) *ReviewService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &ReviewService{
		ledger:    ledger,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// Review applies the brand's decision to a pending delivery. The creator
// notification is best effort and never fails the review.
func (s *ReviewService) Review(ctx context.Context, caller models.Caller, deliveryID string, decision models.ReviewDecision) (models.Delivery, error) {
	d, err := s.ledger.GetDelivery(ctx, deliveryID)
	if err != nil {
		return models.Delivery{}, translate(err)
	}
	gig, err := s.ledger.GetGig(ctx, d.GigID)
	if err != nil {
		return models.Delivery{}, translate(err)
	}
	if !ownsGig(caller, gig) {
		return models.Delivery{}, forbidden("only the brand that owns this gig can review its deliveries")
	}

	decision.Feedback = cleanText(decision.Feedback)
	reviewed, err := workflow.ApplyReview(d, decision, s.now())
	if err != nil {
		return models.Delivery{}, translate(err)
	}

	saved, err := s.ledger.SaveReview(ctx, reviewed)
	if err != nil {
		return models.Delivery{}, translate(err)
	}

	if err := s.publisher.Publish(ctx, queue.Task{
		Type:          queue.TaskDeliveryReviewed,
		DeliveryID:    saved.ID,
		ApplicationID: saved.ApplicationID,
		GigID:         saved.GigID,
		Version:       saved.Version,
		Status:        string(saved.Status),
		OccurredAt:    s.now().UTC(),
	}); err != nil {
		s.log.Error().Err(err).Str("delivery_id", saved.ID).Msg("publish review event failed")
	}

	s.log.Info().
		Str("delivery_id", saved.ID).
		Str("application_id", saved.ApplicationID).
		Str("status", string(saved.Status)).
		Msg("delivery reviewed")

	return saved, nil
}

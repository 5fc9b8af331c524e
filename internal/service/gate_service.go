package service

import (
	"context"

	"fiftybrains/delivery/internal/config"
	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/workflow"
)

type GateService struct {
	ledger Ledger
	limits workflow.Limits
}

func NewGateService(ledger Ledger, cfg config.WorkflowConfig) *GateService {
	return &GateService{
		ledger: ledger,
		limits: limitsFrom(cfg),
	}
}

func limitsFrom(cfg config.WorkflowConfig) workflow.Limits {
	limits := workflow.DefaultLimits()
	if cfg.ApprovedCap > 0 {
		limits.ApprovedCap = cfg.ApprovedCap
	}
	if cfg.RetentionCap > 0 {
		limits.RetentionCap = cfg.RetentionCap
	}
	return limits
}

func (s *GateService) Limits() workflow.Limits {
	return s.limits
}

// CheckEligibility answers whether the caller may upload a new delivery on
// applicationID right now. It never mutates anything.
func (s *GateService) CheckEligibility(ctx context.Context, caller models.Caller, applicationID string) (workflow.Eligibility, error) {
	app, err := s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return workflow.Eligibility{}, translate(err)
	}
	if err := authorizeUploader(caller, app); err != nil {
		return workflow.Eligibility{}, err
	}
	return s.evaluate(ctx, app)
}

func (s *GateService) evaluate(ctx context.Context, app models.Application) (workflow.Eligibility, error) {
	state, err := s.ledger.State(ctx, app.ID)
	if err != nil {
		return workflow.Eligibility{}, translate(err)
	}
	return workflow.Decide(state, s.limits), nil
}

func authorizeUploader(caller models.Caller, app models.Application) error {
	if caller.UserID != app.CreatorID && !caller.IsAdmin() {
		return forbidden("application does not belong to you")
	}
	if !app.CanUpload() {
		return forbidden("application is not approved for uploads")
	}
	return nil
}

func ownsGig(caller models.Caller, gig models.Gig) bool {
	return caller.UserID == gig.BrandID || caller.IsAdmin()
}

func ownsApplication(caller models.Caller, app models.Application) bool {
	return caller.UserID == app.CreatorID || caller.IsAdmin()
}

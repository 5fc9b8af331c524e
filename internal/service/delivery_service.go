package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fiftybrains/delivery/internal/cache"
	"fiftybrains/delivery/internal/config"
	"fiftybrains/delivery/internal/ids"
	"fiftybrains/delivery/internal/media/sniffer"
	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/queue"
	"fiftybrains/delivery/internal/repository"
	"fiftybrains/delivery/internal/storage"
)

const (
	keyRoot         = "deliveries"
	genericMIME     = "application/octet-stream"
	ViewAction      = "view"
	maxTitleLen     = 200
	maxTextFieldLen = 10000
)

type UploadURLInput struct {
	ApplicationID string
	FileName      string
}

type UploadTicket struct {
	UploadURL         string
	Key               string
	ExpiresAt         time.Time
	NextVersionNumber int
}

type FileInput struct {
	Key       string
	Name      string
	SizeBytes int64
	MIMEType  string
}

type SubmitInput struct {
	// ApplicationID may be empty, the caller's application on the gig is
	// used then.
	ApplicationID string
	Title         string
	Description   string
	Notes         string
	Files         []FileInput
	Deliverables  json.RawMessage
}

type SubmitResult struct {
	Delivery        models.Delivery
	EvictedVersions []int
	RetentionCap    int
}

type ListResult struct {
	Application models.Application
	Deliveries  []models.Delivery
}

type ViewTicket struct {
	URL       string
	ExpiresAt time.Time
}

type DeliveryService struct {
	ledger    Ledger
	store     ObjectStorage
	gate      *GateService
	guard     SubmitGuard
	publisher EventPublisher
	cfg       config.WorkflowConfig
	log       zerolog.Logger
	now       func() time.Time
}

func NewDeliveryService(ledger Ledger, store ObjectStorage, gate *GateService, guard SubmitGuard, publisher EventPublisher, cfg config.WorkflowConfig, log zerolog.Logger) *DeliveryService {
	if guard == nil {
		guard = noopGuard{}
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &DeliveryService{
		ledger:    ledger,
		store:     store,
		gate:      gate,
		guard:     guard,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func keyPrefix(applicationID string) string {
	return keyRoot + "/" + applicationID + "/"
}

// IssueUploadURL hands out a presigned PUT for one file of the next
// delivery. The gate must allow an upload before any URL is issued.
func (s *DeliveryService) IssueUploadURL(ctx context.Context, caller models.Caller, input UploadURLInput) (UploadTicket, error) {
	if strings.TrimSpace(input.ApplicationID) == "" {
		return UploadTicket{}, validationError("applicationId is required")
	}
	if strings.TrimSpace(input.FileName) == "" {
		return UploadTicket{}, validationError("fileName is required")
	}

	app, err := s.ledger.GetApplication(ctx, input.ApplicationID)
	if err != nil {
		return UploadTicket{}, translate(err)
	}
	if err := authorizeUploader(caller, app); err != nil {
		return UploadTicket{}, err
	}

	eligibility, err := s.gate.evaluate(ctx, app)
	if err != nil {
		return UploadTicket{}, err
	}
	if !eligibility.CanUpload {
		return UploadTicket{}, policyDenied(eligibility)
	}

	key := keyPrefix(app.ID) + ids.New() + "/" + cleanFileName(input.FileName)
	url, err := s.store.PresignPut(ctx, key, s.cfg.UploadURLTTL)
	if err != nil {
		return UploadTicket{}, err
	}

	return UploadTicket{
		UploadURL:         url,
		Key:               key,
		ExpiresAt:         s.now().Add(s.cfg.UploadURLTTL).UTC(),
		NextVersionNumber: eligibility.NextVersionNumber,
	}, nil
}

// Submit records a new delivery version after every referenced file has
// been confirmed in storage. Nothing is recorded if any check fails.
func (s *DeliveryService) Submit(ctx context.Context, caller models.Caller, gigID string, input SubmitInput) (SubmitResult, error) {
	title := cleanText(input.Title)
	description := cleanText(input.Description)
	notes := cleanText(input.Notes)

	switch {
	case title == "":
		return SubmitResult{}, validationError("title is required")
	case description == "":
		return SubmitResult{}, validationError("description is required")
	case len(title) > maxTitleLen:
		return SubmitResult{}, validationError("title must be at most %d characters", maxTitleLen)
	case len(description) > maxTextFieldLen || len(notes) > maxTextFieldLen:
		return SubmitResult{}, validationError("description and notes must be at most %d characters", maxTextFieldLen)
	case len(input.Files) == 0:
		return SubmitResult{}, validationError("at least one file is required")
	case s.cfg.MaxFiles > 0 && len(input.Files) > s.cfg.MaxFiles:
		return SubmitResult{}, validationError("at most %d files per delivery", s.cfg.MaxFiles)
	}

	app, err := s.resolveApplication(ctx, caller, gigID, input.ApplicationID)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := authorizeUploader(caller, app); err != nil {
		return SubmitResult{}, err
	}

	files, err := s.checkFiles(app.ID, input.Files)
	if err != nil {
		return SubmitResult{}, err
	}
	deliverables, err := parseDeliverables(input.Deliverables, files)
	if err != nil {
		return SubmitResult{}, err
	}

	release, err := s.guard.Acquire(ctx, app.ID)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return SubmitResult{}, &Error{Kind: KindConflict, Message: "a submission for this application is already in progress", Err: err}
		}
		return SubmitResult{}, err
	}
	defer release()

	eligibility, err := s.gate.evaluate(ctx, app)
	if err != nil {
		return SubmitResult{}, err
	}
	if !eligibility.CanUpload {
		return SubmitResult{}, policyDenied(eligibility)
	}

	for i := range files {
		if err := s.verifyFile(ctx, &files[i]); err != nil {
			return SubmitResult{}, err
		}
	}

	res, err := s.ledger.RecordDelivery(ctx, repository.RecordDeliveryInput{
		ApplicationID: app.ID,
		Title:         title,
		Description:   description,
		Notes:         notes,
		Files:         files,
		Deliverables:  deliverables,
		SubmittedAt:   s.now().UTC(),
		Limits:        s.gate.Limits(),
	})
	if err != nil {
		return SubmitResult{}, translate(err)
	}

	evictedVersions := make([]int, 0, len(res.Evicted))
	for _, d := range res.Evicted {
		evictedVersions = append(evictedVersions, d.Version)
	}
	if len(res.Evicted) > 0 {
		s.purgeEvicted(ctx, res.Evicted)
	}

	s.publish(ctx, queue.TaskDeliverySubmitted, res.Delivery)

	s.log.Info().
		Str("application_id", app.ID).
		Str("delivery_id", res.Delivery.ID).
		Int("version", res.Delivery.Version).
		Ints("evicted_versions", evictedVersions).
		Msg("delivery submitted")

	return SubmitResult{
		Delivery:        res.Delivery,
		EvictedVersions: evictedVersions,
		RetentionCap:    s.gate.Limits().RetentionCap,
	}, nil
}

func (s *DeliveryService) resolveApplication(ctx context.Context, caller models.Caller, gigID, applicationID string) (models.Application, error) {
	if strings.TrimSpace(gigID) == "" {
		return models.Application{}, validationError("gigId is required")
	}
	if applicationID == "" {
		app, err := s.ledger.FindApplication(ctx, gigID, caller.UserID)
		return app, translate(err)
	}

	app, err := s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return models.Application{}, translate(err)
	}
	if app.GigID != gigID {
		return models.Application{}, notFound("application not found on this gig", nil)
	}
	return app, nil
}

func (s *DeliveryService) checkFiles(applicationID string, in []FileInput) ([]models.FileDescriptor, error) {
	prefix := keyPrefix(applicationID)
	seen := make(map[string]struct{}, len(in))
	out := make([]models.FileDescriptor, 0, len(in))

	for i, f := range in {
		key := strings.TrimPrefix(strings.TrimSpace(f.Key), "/")
		switch {
		case key == "":
			return nil, validationError("file %d: key is required", i+1)
		case !strings.HasPrefix(key, prefix) || strings.Contains(key, ".."):
			return nil, validationError("file %d: key does not belong to this application", i+1)
		case f.SizeBytes < 0:
			return nil, validationError("file %d: size must not be negative", i+1)
		}
		if _, dup := seen[key]; dup {
			return nil, validationError("file %d: duplicate key", i+1)
		}
		seen[key] = struct{}{}

		name := cleanText(f.Name)
		if name == "" {
			name = key[strings.LastIndex(key, "/")+1:]
		}
		out = append(out, models.FileDescriptor{
			Key:       key,
			Name:      name,
			SizeBytes: f.SizeBytes,
			MIMEType:  sniffer.NormalizeMIME(f.MIMEType),
		})
	}
	return out, nil
}

func parseDeliverables(raw json.RawMessage, files []models.FileDescriptor) ([]models.Deliverable, error) {
	items, err := models.ParseDeliverables(raw)
	if err != nil {
		return nil, translate(err)
	}

	keys := make(map[string]struct{}, len(files))
	for _, f := range files {
		keys[f.Key] = struct{}{}
	}
	for i, item := range items {
		fd, ok := item.(models.FileDeliverable)
		if !ok {
			continue
		}
		if _, found := keys[strings.TrimPrefix(fd.Key, "/")]; !found {
			return nil, validationError("deliverable %d references a file that is not part of this delivery", i+1)
		}
	}
	return items, nil
}

// verifyFile confirms the object was transferred and fills in size and MIME
// type from storage where the client left them out.
func (s *DeliveryService) verifyFile(ctx context.Context, f *models.FileDescriptor) error {
	info, err := s.store.Stat(ctx, f.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return transferError(fmt.Sprintf("file %q was not uploaded, upload it again", f.Name), err)
		}
		return err
	}

	if f.SizeBytes > 0 && info.Size != f.SizeBytes {
		return transferError(fmt.Sprintf("file %q is incomplete (%d of %d bytes)", f.Name, info.Size, f.SizeBytes), nil)
	}
	f.SizeBytes = info.Size
	if s.cfg.MaxFileBytes > 0 && f.SizeBytes > s.cfg.MaxFileBytes {
		return validationError("file %q exceeds the %d byte limit", f.Name, s.cfg.MaxFileBytes)
	}

	if f.MIMEType == "" || f.MIMEType == genericMIME {
		f.MIMEType = sniffer.NormalizeMIME(info.ContentType)
	}
	if f.MIMEType == "" || f.MIMEType == genericMIME {
		f.MIMEType = s.sniff(ctx, f.Key)
	}
	return nil
}

func (s *DeliveryService) sniff(ctx context.Context, key string) string {
	head, err := s.store.ReadHead(ctx, key, sniffer.HeadSize)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("read object head failed")
		return genericMIME
	}
	res, err := sniffer.DetectHead(head)
	if err != nil {
		return genericMIME
	}
	return res.MIME
}

// purgeEvicted removes the evicted objects right away. Keys that fail stay
// tombstoned for the periodic purge.
func (s *DeliveryService) purgeEvicted(ctx context.Context, evicted []models.Delivery) {
	removed := make([]string, 0)
	for _, d := range evicted {
		for _, key := range d.FileKeys() {
			if err := s.store.Remove(ctx, key); err != nil {
				s.log.Warn().Err(err).Str("key", key).Str("delivery_id", d.ID).Msg("remove evicted object failed")
				continue
			}
			removed = append(removed, key)
		}
	}
	if len(removed) == 0 {
		return
	}
	if err := s.ledger.DeleteTombstones(ctx, removed); err != nil {
		s.log.Warn().Err(err).Msg("clear tombstones failed")
	}
}

func (s *DeliveryService) publish(ctx context.Context, taskType string, d models.Delivery) {
	err := s.publisher.Publish(ctx, queue.Task{
		Type:          taskType,
		DeliveryID:    d.ID,
		ApplicationID: d.ApplicationID,
		GigID:         d.GigID,
		Version:       d.Version,
		Status:        string(d.Status),
		OccurredAt:    s.now().UTC(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("delivery_id", d.ID).Str("event", taskType).Msg("publish event failed")
	}
}

// List returns the retained versions of one application on a gig, newest
// first. Creators see their own application; the gig's brand must name one.
func (s *DeliveryService) List(ctx context.Context, caller models.Caller, gigID string, applicationID string) (ListResult, error) {
	gig, err := s.ledger.GetGig(ctx, gigID)
	if err != nil {
		return ListResult{}, translate(err)
	}

	var app models.Application
	switch {
	case applicationID != "":
		app, err = s.ledger.GetApplication(ctx, applicationID)
		if err != nil {
			return ListResult{}, translate(err)
		}
		if app.GigID != gig.ID {
			return ListResult{}, notFound("application not found on this gig", nil)
		}
	case ownsGig(caller, gig):
		return ListResult{}, validationError("applicationId is required")
	default:
		app, err = s.ledger.FindApplication(ctx, gig.ID, caller.UserID)
		if err != nil {
			return ListResult{}, translate(err)
		}
	}

	if !ownsApplication(caller, app) && !ownsGig(caller, gig) {
		return ListResult{}, forbidden("you cannot view deliveries for this application")
	}

	deliveries, err := s.ledger.ListDeliveries(ctx, app.ID)
	if err != nil {
		return ListResult{}, translate(err)
	}
	return ListResult{Application: app, Deliveries: deliveries}, nil
}

// SignViewURL issues a short lived GET URL for a stored delivery file.
func (s *DeliveryService) SignViewURL(ctx context.Context, caller models.Caller, key string, action string) (ViewTicket, error) {
	if action != ViewAction {
		return ViewTicket{}, validationError("action must be %q", ViewAction)
	}
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	parts := strings.Split(key, "/")
	if len(parts) < 3 || parts[0] != keyRoot || parts[1] == "" || strings.Contains(key, "..") {
		return ViewTicket{}, validationError("fileUrl is not a delivery file")
	}

	app, err := s.ledger.GetApplication(ctx, parts[1])
	if err != nil {
		return ViewTicket{}, translate(err)
	}
	gig, err := s.ledger.GetGig(ctx, app.GigID)
	if err != nil {
		return ViewTicket{}, translate(err)
	}
	if !ownsApplication(caller, app) && !ownsGig(caller, gig) {
		return ViewTicket{}, forbidden("you cannot view this file")
	}

	url, err := s.store.PresignGet(ctx, key, s.cfg.ViewURLTTL)
	if err != nil {
		return ViewTicket{}, err
	}
	return ViewTicket{URL: url, ExpiresAt: s.now().Add(s.cfg.ViewURLTTL).UTC()}, nil
}

package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"fiftybrains/delivery/internal/ids"
	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/workflow"
)

// MemoryLedger is an in-process ledger used by tests and local runs
// without Postgres. A single mutex serializes every mutation, which gives
// the same check-and-insert atomicity the Postgres ledger gets from row locks.
type MemoryLedger struct {
	mu           sync.Mutex
	gigs         map[string]models.Gig
	applications map[string]models.Application
	deliveries   map[string]models.Delivery
	tombstones   map[string]models.StorageTombstone
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		gigs:         make(map[string]models.Gig),
		applications: make(map[string]models.Application),
		deliveries:   make(map[string]models.Delivery),
		tombstones:   make(map[string]models.StorageTombstone),
	}
}

func (m *MemoryLedger) PutGig(gig models.Gig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gigs[gig.ID] = gig
}

func (m *MemoryLedger) PutApplication(app models.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications[app.ID] = app
}

func (m *MemoryLedger) GetGig(_ context.Context, id string) (models.Gig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gig, ok := m.gigs[id]
	if !ok {
		return models.Gig{}, ErrGigNotFound
	}
	return gig, nil
}

func (m *MemoryLedger) GetApplication(_ context.Context, id string) (models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[id]
	if !ok {
		return models.Application{}, ErrApplicationNotFound
	}
	return app, nil
}

func (m *MemoryLedger) FindApplication(_ context.Context, gigID string, creatorID string) (models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.applications {
		if app.GigID == gigID && app.CreatorID == creatorID {
			return app, nil
		}
	}
	return models.Application{}, ErrApplicationNotFound
}

func (m *MemoryLedger) State(_ context.Context, applicationID string) (models.LedgerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[applicationID]
	if !ok {
		return models.LedgerState{}, ErrApplicationNotFound
	}
	return m.stateLocked(app), nil
}

func (m *MemoryLedger) stateLocked(app models.Application) models.LedgerState {
	state := models.LedgerState{
		ApprovedCount: app.ApprovedTotal,
		LastVersion:   app.LastVersion,
	}
	for _, d := range m.deliveries {
		if d.ApplicationID != app.ID {
			continue
		}
		state.Retained++
		if d.Status == models.DeliveryStatusPending {
			state.Pending = true
		}
	}
	return state
}

func (m *MemoryLedger) RecordDelivery(_ context.Context, input RecordDeliveryInput) (RecordDeliveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.applications[input.ApplicationID]
	if !ok {
		return RecordDeliveryResult{}, ErrApplicationNotFound
	}
	if !app.CanUpload() {
		return RecordDeliveryResult{}, ErrApplicationNotApproved
	}

	state := m.stateLocked(app)
	if state.Pending {
		return RecordDeliveryResult{}, ErrPendingExists
	}
	if state.ApprovedCount >= input.Limits.ApprovedCap {
		return RecordDeliveryResult{}, ErrApprovedLimit
	}

	byVersion := make(map[int]models.Delivery)
	existing := make([]models.Delivery, 0)
	for _, d := range m.deliveries {
		if d.ApplicationID == app.ID {
			byVersion[d.Version] = d
			existing = append(existing, d)
		}
	}
	tombstoned := func(key string) bool {
		_, ok := m.tombstones[key]
		return ok
	}
	if key, reused := firstReusedKey(input.Files, existing, tombstoned); reused {
		return RecordDeliveryResult{}, &FileKeyError{Key: key}
	}
	versions := make([]int, 0, len(byVersion))
	for v := range byVersion {
		versions = append(versions, v)
	}

	var evicted []models.Delivery
	for _, v := range workflow.PlanEviction(versions, input.Limits.RetentionCap) {
		d := byVersion[v]
		delete(m.deliveries, d.ID)
		for _, key := range d.FileKeys() {
			m.tombstones[key] = models.StorageTombstone{Key: key, DeliveryID: d.ID, CreatedAt: input.SubmittedAt}
		}
		evicted = append(evicted, d)
	}

	app.LastVersion++
	app.UpdatedAt = input.SubmittedAt
	m.applications[app.ID] = app

	delivery := models.Delivery{
		ID:            ids.New(),
		ApplicationID: app.ID,
		GigID:         app.GigID,
		Version:       app.LastVersion,
		Title:         input.Title,
		Description:   input.Description,
		Notes:         input.Notes,
		Files:         slices.Clone(input.Files),
		Deliverables:  slices.Clone(input.Deliverables),
		Status:        models.DeliveryStatusPending,
		SubmittedAt:   input.SubmittedAt.UTC(),
	}
	m.deliveries[delivery.ID] = delivery

	return RecordDeliveryResult{Delivery: delivery, Evicted: evicted}, nil
}

func (m *MemoryLedger) ListDeliveries(_ context.Context, applicationID string) ([]models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.applications[applicationID]; !ok {
		return nil, ErrApplicationNotFound
	}

	out := make([]models.Delivery, 0)
	for _, d := range m.deliveries {
		if d.ApplicationID == applicationID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *MemoryLedger) GetDelivery(_ context.Context, id string) (models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return models.Delivery{}, ErrDeliveryNotFound
	}
	return d, nil
}

func (m *MemoryLedger) SaveReview(_ context.Context, reviewed models.Delivery) (models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.deliveries[reviewed.ID]
	if !ok {
		return models.Delivery{}, ErrDeliveryNotFound
	}
	if current.Status != models.DeliveryStatusPending {
		return models.Delivery{}, workflow.ErrNotPending
	}

	current.Status = reviewed.Status
	current.Rating = reviewed.Rating
	current.Feedback = reviewed.Feedback
	current.ReviewedAt = reviewed.ReviewedAt
	m.deliveries[current.ID] = current

	if workflow.CountsTowardApprovedCap(current.Status) {
		app := m.applications[current.ApplicationID]
		app.ApprovedTotal++
		if current.ReviewedAt != nil {
			app.UpdatedAt = *current.ReviewedAt
		}
		m.applications[app.ID] = app
	}

	return current, nil
}

func (m *MemoryLedger) ListTombstones(_ context.Context, olderThan time.Time, limit int) ([]models.StorageTombstone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.StorageTombstone, 0)
	for _, t := range m.tombstones {
		if t.CreatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLedger) DeleteTombstones(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.tombstones, key)
	}
	return nil
}

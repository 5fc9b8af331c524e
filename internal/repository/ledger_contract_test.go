package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/workflow"
)

type contractLedger interface {
	GetGig(ctx context.Context, id string) (models.Gig, error)
	GetApplication(ctx context.Context, id string) (models.Application, error)
	FindApplication(ctx context.Context, gigID string, creatorID string) (models.Application, error)
	State(ctx context.Context, applicationID string) (models.LedgerState, error)
	RecordDelivery(ctx context.Context, input RecordDeliveryInput) (RecordDeliveryResult, error)
	ListDeliveries(ctx context.Context, applicationID string) ([]models.Delivery, error)
	GetDelivery(ctx context.Context, id string) (models.Delivery, error)
	SaveReview(ctx context.Context, reviewed models.Delivery) (models.Delivery, error)
	ListTombstones(ctx context.Context, olderThan time.Time, limit int) ([]models.StorageTombstone, error)
	DeleteTombstones(ctx context.Context, keys []string) error
}

// seedFunc creates a gig owned by brandID and an application on it.
type seedFunc func(t *testing.T, gigID, brandID, appID, creatorID string, status models.ApplicationStatus)

func recordInput(appID string, n int) RecordDeliveryInput {
	return RecordDeliveryInput{
		ApplicationID: appID,
		Title:         fmt.Sprintf("cut %d", n),
		Description:   "final edit",
		Files: []models.FileDescriptor{{
			Key:       fmt.Sprintf("deliveries/%s/%d/video.mp4", appID, n),
			Name:      "video.mp4",
			SizeBytes: 2048,
			MIMEType:  "video/mp4",
		}},
		Deliverables: []models.Deliverable{models.LinkDeliverable{URL: "https://example.com/post"}},
		SubmittedAt:  time.Now().UTC().Truncate(time.Microsecond),
		Limits:       workflow.DefaultLimits(),
	}
}

func review(t *testing.T, ledger contractLedger, d models.Delivery, decision models.ReviewDecision) models.Delivery {
	t.Helper()
	reviewed, err := workflow.ApplyReview(d, decision, time.Now())
	require.NoError(t, err)
	out, err := ledger.SaveReview(context.Background(), reviewed)
	require.NoError(t, err)
	return out
}

func rejectDecision() models.ReviewDecision {
	return models.ReviewDecision{Status: models.DeliveryStatusRejected, Feedback: "reshoot"}
}

func approveDecision() models.ReviewDecision {
	rating := 5
	return models.ReviewDecision{Status: models.DeliveryStatusApproved, Rating: &rating}
}

func runLedgerContract(t *testing.T, newLedger func(t *testing.T) (contractLedger, seedFunc)) {
	ctx := context.Background()

	t.Run("first delivery gets version one", func(t *testing.T) {
		ledger, seed := newLedger(t)
		seed(t, "gig-1", "brand-1", "app-1", "creator-1", models.ApplicationStatusApproved)

		res, err := ledger.RecordDelivery(ctx, recordInput("app-1", 1))
		require.NoError(t, err)
		require.Equal(t, 1, res.Delivery.Version)
		require.Equal(t, models.DeliveryStatusPending, res.Delivery.Status)
		require.Empty(t, res.Evicted)

		got, err := ledger.GetDelivery(ctx, res.Delivery.ID)
		require.NoError(t, err)
		require.Equal(t, "gig-1", got.GigID)
		require.Len(t, got.Files, 1)
		require.Equal(t, int64(2048), got.Files[0].SizeBytes)
		require.Len(t, got.Deliverables, 1)

		state, err := ledger.State(ctx, "app-1")
		require.NoError(t, err)
		require.True(t, state.Pending)
		require.Equal(t, 1, state.Retained)
		require.Equal(t, 1, state.LastVersion)
	})

	t.Run("second pending is a conflict", func(t *testing.T) {
		ledger, seed := newLedger(t)
		seed(t, "gig-1", "brand-1", "app-1", "creator-1", models.ApplicationStatusApproved)

		_, err := ledger.RecordDelivery(ctx, recordInput("app-1", 1))
		require.NoError(t, err)
		_, err = ledger.RecordDelivery(ctx, recordInput("app-1", 2))
		require.ErrorIs(t, err, ErrPendingExists)
	})

	t.Run("concurrent inserts leave one pending", func(t *testing.T) {
		ledger, seed := newLedger(t)
		seed(t, "gig-1", "brand-1", "app-1", "creator-1", models.ApplicationStatusApproved)

		const attempts = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := ledger.RecordDelivery(ctx, recordInput("app-1", n))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, ErrPendingExists):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, 1, successes)
		require.Equal(t, attempts-1, conflicts)
		items, err := ledger.ListDeliveries(ctx, "app-1")
		require.NoError(t, err)
		require.Len(t, items, 1)
	})

	t.Run("fourth version evicts the oldest", func(t *testing.T) {
		ledger, seed := newLedger(t)
		seed(t, "gig-1", "brand-1", "app-1", "creator-1", models.ApplicationStatusApproved)

		var first models.Delivery
		for n := 1; n <= 3; n++ {
			res, err := ledger.RecordDelivery(ctx, recordInput("app-1", n))
			require.NoError(t, err)
			if n == 1 {
				first = res.Delivery
			}
			review(t, ledger, res.Delivery, rejectDecision())
		}

		res, err := ledger.RecordDelivery(ctx, recordInput("app-1", 4))
		require.NoError(t, err)
		require.Equal(t, 4, res.Delivery.Version)
		require.Len(t, res.Evicted, 1)
		require.Equal(t, 1, res.Evicted[0].Version)

		items, err := ledger.ListDeliveries(ctx, "app-1")
		require.NoError(t, err)
		versions := make([]int, 0, len(items))
		for _, d := range items {
			versions = append(versions, d.Version)
		}
		require.Equal(t, []int{4, 3, 2}, versions)

		_, err = ledger.GetDelivery(ctx, first.ID)
		require.ErrorIs(t, err, ErrDeliveryNotFound)

		tombstones, err := ledger.ListTombstones(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, tombstones, 1)
		require.Equal(t, first.Files[0].Key, tombstones[0].Key)

		require.NoError(t, ledger.DeleteTombstones(ctx, []string{tombstones[0].Key}))
		tombstones, err = ledger.ListTombstones(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Empty(t, tombstones)

		review(t, ledger, res.Delivery, rejectDecision())
		state, err := ledger.State(ctx, "app-1")
		require.NoError(t, err)
		require.Equal(t, 4, state.LastVersion)
		require.Equal(t, 3, state.Retained)
	})

	t.Run("file key cannot be reused across versions", func(t *testing.T) {
		ledger, seed := newLedger(t)
		seed(t, "gig-1", "brand-1", "app-1", "creator-1", models.ApplicationStatusApproved)

		shared := recordInput("app-1", 1).Files[0]
		for n := 1; n <= 3; n++ {
			res, err := ledger.RecordDelivery(ctx, recordInput("app-1", n))
			require.NoError(t, err)
			review(t, ledger, res.Delivery, models.ReviewDecision{Status: models.DeliveryStatusRevision, Feedback: "trim"})
		}

		reuse := recordInput("app-1", 4)
		reuse.Files = append(reuse.Files, shared)
		_, err := ledger.RecordDelivery(ctx, reuse)
		require.ErrorIs(t, err, ErrFileKeyInUse)
		var keyErr *FileKeyError
		require.ErrorAs(t, err, &keyErr)
		require.Equal(t, shared.Key, keyErr.Key)

		state, err := ledger.State(ctx, "app-1")
		require.NoError(t, err)
		require.Equal(t, 3, state.LastVersion)
		require.Equal(t, 3, state.Retained)
		tombstones, err := ledger.ListTombstones(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Empty(t, tombstones)

		res, err := ledger.RecordDelivery(ctx, recordInput("app-1", 4))
		require.NoError(t, err)
		require.Equal(t, 1, res.Evicted[0].Version)
		review(t, ledger, res.Delivery, rejectDecision())

		// The evicted object is still tombstoned, so its key stays refused
		// until the purge has run.
		_, err = ledger.RecordDelivery(ctx, RecordDeliveryInput{
			ApplicationID: "app-1",
			Title:         "cut 5",
			Description:   "final edit",
			Files:         []models.FileDescriptor{shared},
			SubmittedAt:   time.Now().UTC(),
			Limits:        workflow.DefaultLimits(),
		})
		require.ErrorIs(t, err, ErrFileKeyInUse)
	})

	t.Run("approvals count and cap is enforced at insert", func(t *testing.T) {
		ledger, seed := newLedger(t)
		seed(t, "gig-1", "brand-1", "app-1", "creator-1", models.ApplicationStatusApproved)

		for n := 1; n <= 2; n++ {
			res, err := ledger.RecordDelivery(ctx, recordInput("app-1", n))
			require.NoError(t, err)
			out := review(t, ledger, res.Delivery, approveDecision())
			require.Equal(t, 5, *out.Rating)
		}

		state, err := ledger.State(ctx, "app-1")
		require.NoError(t, err)
		require.Equal(t, 2, state.ApprovedCount)

		_, err = ledger.RecordDelivery(ctx, recordInput("app-1", 3))
		require.ErrorIs(t, err, ErrApprovedLimit)
	})

	t.Run("second review fails", func(t *testing.T) {
		ledger, seed := newLedger(t)
		seed(t, "gig-1", "brand-1", "app-1", "creator-1", models.ApplicationStatusApproved)

		res, err := ledger.RecordDelivery(ctx, recordInput("app-1", 1))
		require.NoError(t, err)
		reviewed, err := workflow.ApplyReview(res.Delivery, approveDecision(), time.Now())
		require.NoError(t, err)

		_, err = ledger.SaveReview(ctx, reviewed)
		require.NoError(t, err)
		_, err = ledger.SaveReview(ctx, reviewed)
		require.ErrorIs(t, err, workflow.ErrNotPending)

		state, err := ledger.State(ctx, "app-1")
		require.NoError(t, err)
		require.Equal(t, 1, state.ApprovedCount)
	})

	t.Run("unapproved application cannot record", func(t *testing.T) {
		ledger, seed := newLedger(t)
		seed(t, "gig-1", "brand-1", "app-1", "creator-1", models.ApplicationStatusPending)

		_, err := ledger.RecordDelivery(ctx, recordInput("app-1", 1))
		require.ErrorIs(t, err, ErrApplicationNotApproved)
	})

	t.Run("lookups", func(t *testing.T) {
		ledger, seed := newLedger(t)
		seed(t, "gig-1", "brand-1", "app-1", "creator-1", models.ApplicationStatusApproved)

		gig, err := ledger.GetGig(ctx, "gig-1")
		require.NoError(t, err)
		require.Equal(t, "brand-1", gig.BrandID)

		app, err := ledger.FindApplication(ctx, "gig-1", "creator-1")
		require.NoError(t, err)
		require.Equal(t, "app-1", app.ID)

		_, err = ledger.GetGig(ctx, "missing")
		require.ErrorIs(t, err, ErrGigNotFound)
		_, err = ledger.GetApplication(ctx, "missing")
		require.ErrorIs(t, err, ErrApplicationNotFound)
		_, err = ledger.State(ctx, "missing")
		require.ErrorIs(t, err, ErrApplicationNotFound)
		_, err = ledger.ListDeliveries(ctx, "missing")
		require.ErrorIs(t, err, ErrApplicationNotFound)
		_, err = ledger.SaveReview(ctx, models.Delivery{ID: "missing", Status: models.DeliveryStatusRejected})
		require.ErrorIs(t, err, ErrDeliveryNotFound)
	})
}

func TestMemoryLedger(t *testing.T) {
	runLedgerContract(t, func(t *testing.T) (contractLedger, seedFunc) {
		ledger := NewMemoryLedger()
		seed := func(t *testing.T, gigID, brandID, appID, creatorID string, status models.ApplicationStatus) {
			ledger.PutGig(models.Gig{ID: gigID, BrandID: brandID})
			ledger.PutApplication(models.Application{ID: appID, GigID: gigID, CreatorID: creatorID, Status: status})
		}
		return ledger, seed
	})
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fiftybrains/delivery/internal/ids"
	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/workflow"
)

const uniqueViolation = "23505"

const deliveryColumns = `
	d.id, d.application_id, a.gig_id, d.version, d.title, d.description, d.notes,
	d.files, d.deliverables, d.status, d.feedback, d.rating, d.submitted_at, d.reviewed_at
`

const applicationColumns = `
	id, gig_id, creator_id, status, last_version, approved_total, created_at, updated_at
`

type fileRecord struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
}

type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (r *PostgresLedger) GetGig(ctx context.Context, id string) (models.Gig, error) {
	const query = `SELECT id, brand_id, title, created_at FROM gigs WHERE id = $1`

	var gig models.Gig
	if err := r.pool.QueryRow(ctx, query, id).Scan(&gig.ID, &gig.BrandID, &gig.Title, &gig.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Gig{}, ErrGigNotFound
		}
		return models.Gig{}, err
	}
	return gig, nil
}

func (r *PostgresLedger) GetApplication(ctx context.Context, id string) (models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	return scanApplication(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresLedger) FindApplication(ctx context.Context, gigID string, creatorID string) (models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE gig_id = $1 AND creator_id = $2`
	return scanApplication(r.pool.QueryRow(ctx, query, gigID, creatorID))
}

func (r *PostgresLedger) State(ctx context.Context, applicationID string) (models.LedgerState, error) {
	const query = `
		SELECT a.last_version,
		       a.approved_total,
		       COUNT(d.id),
		       COUNT(d.id) FILTER (WHERE d.status = 'PENDING') > 0
		FROM applications a
		LEFT JOIN deliveries d ON d.application_id = a.id
		WHERE a.id = $1
		GROUP BY a.id
	`

	var state models.LedgerState
	if err := r.pool.QueryRow(ctx, query, applicationID).Scan(
		&state.LastVersion,
		&state.ApprovedCount,
		&state.Retained,
		&state.Pending,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LedgerState{}, ErrApplicationNotFound
		}
		return models.LedgerState{}, err
	}
	return state, nil
}

// RecordDelivery inserts a new PENDING version. The application row is
// locked for the whole transaction so the pending check, eviction and
// insert see one consistent history; the partial unique index on pending
// rows backs this up.
func (r *PostgresLedger) RecordDelivery(ctx context.Context, input RecordDeliveryInput) (RecordDeliveryResult, error) {
	filesJSON, err := encodeFiles(input.Files)
	if err != nil {
		return RecordDeliveryResult{}, err
	}
	deliverablesJSON, err := models.MarshalDeliverables(input.Deliverables)
	if err != nil {
		return RecordDeliveryResult{}, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return RecordDeliveryResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockQuery := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 FOR UPDATE`
	app, err := scanApplication(tx.QueryRow(ctx, lockQuery, input.ApplicationID))
	if err != nil {
		return RecordDeliveryResult{}, err
	}
	if !app.CanUpload() {
		return RecordDeliveryResult{}, ErrApplicationNotApproved
	}

	retained, err := queryDeliveries(ctx, tx, `WHERE d.application_id = $1`, app.ID)
	if err != nil {
		return RecordDeliveryResult{}, fmt.Errorf("load versions: %w", err)
	}

	byVersion := make(map[int]models.Delivery, len(retained))
	versions := make([]int, 0, len(retained))
	for _, d := range retained {
		if d.Status == models.DeliveryStatusPending {
			return RecordDeliveryResult{}, ErrPendingExists
		}
		byVersion[d.Version] = d
		versions = append(versions, d.Version)
	}
	if app.ApprovedTotal >= input.Limits.ApprovedCap {
		return RecordDeliveryResult{}, ErrApprovedLimit
	}

	tombstoned, err := tombstonedKeys(ctx, tx, input.Files)
	if err != nil {
		return RecordDeliveryResult{}, fmt.Errorf("load tombstones: %w", err)
	}
	if key, reused := firstReusedKey(input.Files, retained, func(k string) bool {
		_, ok := tombstoned[k]
		return ok
	}); reused {
		return RecordDeliveryResult{}, &FileKeyError{Key: key}
	}

	var evicted []models.Delivery
	for _, v := range workflow.PlanEviction(versions, input.Limits.RetentionCap) {
		d := byVersion[v]
		if err := evictDelivery(ctx, tx, d); err != nil {
			return RecordDeliveryResult{}, fmt.Errorf("evict version %d: %w", v, err)
		}
		evicted = append(evicted, d)
	}

	const bumpQuery = `
		UPDATE applications
		SET last_version = last_version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING last_version
	`
	var version int
	if err := tx.QueryRow(ctx, bumpQuery, app.ID).Scan(&version); err != nil {
		return RecordDeliveryResult{}, fmt.Errorf("bump version: %w", err)
	}

	delivery := models.Delivery{
		ID:            ids.New(),
		ApplicationID: app.ID,
		GigID:         app.GigID,
		Version:       version,
		Title:         input.Title,
		Description:   input.Description,
		Notes:         input.Notes,
		Files:         input.Files,
		Deliverables:  input.Deliverables,
		Status:        models.DeliveryStatusPending,
		SubmittedAt:   input.SubmittedAt.UTC(),
	}

	const insertQuery = `
		INSERT INTO deliveries (
			id, application_id, version, title, description, notes,
			files, deliverables, status, submitted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::jsonb, $8::jsonb, $9, $10
		)
	`
	if _, err := tx.Exec(ctx, insertQuery,
		delivery.ID,
		delivery.ApplicationID,
		delivery.Version,
		delivery.Title,
		delivery.Description,
		delivery.Notes,
		string(filesJSON),
		string(deliverablesJSON),
		delivery.Status,
		delivery.SubmittedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return RecordDeliveryResult{}, ErrPendingExists
		}
		return RecordDeliveryResult{}, fmt.Errorf("insert delivery: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return RecordDeliveryResult{}, ErrPendingExists
		}
		return RecordDeliveryResult{}, fmt.Errorf("commit: %w", err)
	}

	return RecordDeliveryResult{Delivery: delivery, Evicted: evicted}, nil
}

func evictDelivery(ctx context.Context, tx pgx.Tx, d models.Delivery) error {
	const tombstoneQuery = `
		INSERT INTO storage_tombstones (object_key, delivery_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (object_key) DO NOTHING
	`
	for _, key := range d.FileKeys() {
		if _, err := tx.Exec(ctx, tombstoneQuery, key, d.ID); err != nil {
			return fmt.Errorf("tombstone %s: %w", key, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, d.ID); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	return nil
}

func tombstonedKeys(ctx context.Context, q querier, files []models.FileDescriptor) (map[string]struct{}, error) {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.Key)
	}

	rows, err := q.Query(ctx, `SELECT object_key FROM storage_tombstones WHERE object_key = ANY($1)`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = struct{}{}
	}
	return out, rows.Err()
}

func (r *PostgresLedger) ListDeliveries(ctx context.Context, applicationID string) ([]models.Delivery, error) {
	if _, err := r.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return queryDeliveries(ctx, r.pool, `WHERE d.application_id = $1 ORDER BY d.version DESC`, applicationID)
}

func (r *PostgresLedger) GetDelivery(ctx context.Context, id string) (models.Delivery, error) {
	items, err := queryDeliveries(ctx, r.pool, `WHERE d.id = $1`, id)
	if err != nil {
		return models.Delivery{}, err
	}
	if len(items) == 0 {
		return models.Delivery{}, ErrDeliveryNotFound
	}
	return items[0], nil
}

// SaveReview persists a review outcome with a compare-and-set on the
// PENDING status and bumps the approved counter in the same transaction.
func (r *PostgresLedger) SaveReview(ctx context.Context, reviewed models.Delivery) (models.Delivery, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Delivery{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const updateQuery = `
		UPDATE deliveries
		SET status = $2,
		    rating = $3,
		    feedback = $4,
		    reviewed_at = $5
		WHERE id = $1 AND status = 'PENDING'
		RETURNING application_id
	`
	var applicationID string
	err = tx.QueryRow(ctx, updateQuery,
		reviewed.ID,
		reviewed.Status,
		reviewed.Rating,
		reviewed.Feedback,
		reviewed.ReviewedAt,
	).Scan(&applicationID)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM deliveries WHERE id = $1)`, reviewed.ID).Scan(&exists); err != nil {
			return models.Delivery{}, err
		}
		if !exists {
			return models.Delivery{}, ErrDeliveryNotFound
		}
		return models.Delivery{}, workflow.ErrNotPending
	}
	if err != nil {
		return models.Delivery{}, fmt.Errorf("update review: %w", err)
	}

	if workflow.CountsTowardApprovedCap(reviewed.Status) {
		const countQuery = `
			UPDATE applications
			SET approved_total = approved_total + 1,
			    updated_at = NOW()
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, countQuery, applicationID); err != nil {
			return models.Delivery{}, fmt.Errorf("count approval: %w", err)
		}
	}

	items, err := queryDeliveries(ctx, tx, `WHERE d.id = $1`, reviewed.ID)
	if err != nil {
		return models.Delivery{}, err
	}
	if len(items) == 0 {
		return models.Delivery{}, ErrDeliveryNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Delivery{}, fmt.Errorf("commit: %w", err)
	}
	return items[0], nil
}

func (r *PostgresLedger) ListTombstones(ctx context.Context, olderThan time.Time, limit int) ([]models.StorageTombstone, error) {
	const query = `
		SELECT object_key, delivery_id, created_at
		FROM storage_tombstones
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StorageTombstone
	for rows.Next() {
		var t models.StorageTombstone
		if err := rows.Scan(&t.Key, &t.DeliveryID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresLedger) DeleteTombstones(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM storage_tombstones WHERE object_key = ANY($1)`, keys)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryDeliveries(ctx context.Context, q querier, where string, args ...any) ([]models.Delivery, error) {
	query := `SELECT ` + deliveryColumns + `
		FROM deliveries d
		JOIN applications a ON a.id = d.application_id
		` + where

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Delivery
	for rows.Next() {
		var (
			d                models.Delivery
			filesJSON        []byte
			deliverablesJSON []byte
		)
		if err := rows.Scan(
			&d.ID,
			&d.ApplicationID,
			&d.GigID,
			&d.Version,
			&d.Title,
			&d.Description,
			&d.Notes,
			&filesJSON,
			&deliverablesJSON,
			&d.Status,
			&d.Feedback,
			&d.Rating,
			&d.SubmittedAt,
			&d.ReviewedAt,
		); err != nil {
			return nil, err
		}
		if d.Files, err = decodeFiles(filesJSON); err != nil {
			return nil, fmt.Errorf("delivery %s files: %w", d.ID, err)
		}
		if d.Deliverables, err = models.ParseDeliverables(deliverablesJSON); err != nil {
			return nil, fmt.Errorf("delivery %s deliverables: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanApplication(row pgx.Row) (models.Application, error) {
	var app models.Application
	if err := row.Scan(
		&app.ID,
		&app.GigID,
		&app.CreatorID,
		&app.Status,
		&app.LastVersion,
		&app.ApprovedTotal,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Application{}, ErrApplicationNotFound
		}
		return models.Application{}, err
	}
	return app, nil
}

func encodeFiles(files []models.FileDescriptor) ([]byte, error) {
	records := make([]fileRecord, 0, len(files))
	for _, f := range files {
		records = append(records, fileRecord{Key: f.Key, Name: f.Name, Size: f.SizeBytes, MIMEType: f.MIMEType})
	}
	return json.Marshal(records)
}

func decodeFiles(raw []byte) ([]models.FileDescriptor, error) {
	var records []fileRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	files := make([]models.FileDescriptor, 0, len(records))
	for _, r := range records {
		files = append(files, models.FileDescriptor{Key: r.Key, Name: r.Name, SizeBytes: r.Size, MIMEType: r.MIMEType})
	}
	return files, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/session"
	"github.com/desertthunder/crate/internal/shared"
)

const (
	ModeTransfer = "transfer"
	ModeGuide    = "guide"
)

const transferColumns = `
	id, sequence, destination, mode, status, total_items, completed_items,
	succeeded_items, error_message, report, started_at, completed_at,
	created_at, updated_at, deleted_at`

// TransferRepository is the [models.Store] of transfer history rows, with status and destination
// filters on List.
type TransferRepository struct {
	db *sql.DB
}

var _ models.Store[*models.TransferRecord] = (*TransferRepository)(nil)

// NewTransferRepository creates a new TransferRepository with the given database connection
func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create inserts a new transfer with a generated sequence. The ID is generated when empty.
func (r *TransferRepository) Create(t *models.TransferRecord) error {
	sequence, err := NextSequence(r.db, "transfers")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if t.ID() == "" {
		t.SetID(shared.GenerateID())
	}
	t.SetSequence(sequence)

	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err = r.db.Exec(query,
		t.ID(),
		sequence,
		t.Destination(),
		t.Mode(),
		string(t.Status()),
		t.TotalItems(),
		t.CompletedItems(),
		t.Succeeded(),
		nullString(t.ErrorMessage()),
		nullString(t.ReportJSON()),
		t.StartedAt(),
		t.CompletedAt(),
		t.CreatedAt(),
		t.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	return nil
}

// Get retrieves a transfer by ID, excluding soft-deleted transfers
func (r *TransferRepository) Get(id string) (*models.TransferRecord, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = ? AND deleted_at IS NULL`

	t, err := scanTransfer(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transfer %s", shared.ErrNotFound, id)
	}
	return t, err
}

// Update modifies an existing transfer in the database
func (r *TransferRepository) Update(t *models.TransferRecord) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	t.SetUpdatedAt(now)

	query := `
		UPDATE transfers
		SET status = ?, total_items = ?, completed_items = ?, succeeded_items = ?,
			error_message = ?, report = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		string(t.Status()),
		t.TotalItems(),
		t.CompletedItems(),
		t.Succeeded(),
		nullString(t.ErrorMessage()),
		nullString(t.ReportJSON()),
		t.StartedAt(),
		t.CompletedAt(),
		now,
		t.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}

	return expectRow(result, "transfer", t.ID())
}

// Delete soft-deletes a transfer by ID
func (r *TransferRepository) Delete(id string) error {
	query := `
		UPDATE transfers
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}

	return expectRow(result, "transfer", id)
}

// List retrieves transfers matching the given criteria, newest first.
//
// Supported criteria: "destination" (string), "status" (string), "limit" (int).
func (r *TransferRepository) List(criteria map[string]any) ([]*models.TransferRecord, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE deleted_at IS NULL`
	args := []any{}

	if destination, ok := criteria["destination"].(string); ok && destination != "" {
		query += " AND destination = ?"
		args = append(args, destination)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*models.TransferRecord
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return transfers, nil
}

// Record archives a session snapshot, creating the row on first sight and updating it afterwards.
func (r *TransferRepository) Record(_ context.Context, snap session.Snapshot, report *models.Report) error {
	mode := ModeTransfer
	if snap.Guide {
		mode = ModeGuide
	}

	t, err := r.Get(snap.ID)
	isNew := errors.Is(err, shared.ErrNotFound)
	switch {
	case isNew:
		t = models.NewTransferRecord(snap.ID, snap.Destination, mode, snap.Total)
	case err != nil:
		return err
	default:
		t = models.RestoreTransferRecord(
			t.ID(), t.Sequence(), t.Destination(), mode, t.Status(), snap.Total,
			t.CompletedItems(), t.Succeeded(), t.ErrorMessage(), t.ReportJSON(),
			t.StartedAt(), t.CompletedAt(), t.CreatedAt(), t.UpdatedAt(), nil,
		)
	}

	if snap.StartedAt != nil {
		t.Start(*snap.StartedAt)
	}
	t.SetProgress(snap.Completed, snap.Succeeded)

	if report != nil {
		data, err := shared.MarshalJSON(report, false)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		t.SetReportJSON(string(data))
	}

	if snap.FinishedAt != nil {
		var cause error
		if snap.Phase == session.Failed {
			cause = errors.New(snap.Error)
		}
		t.Finish(*snap.FinishedAt, cause)
	}

	if isNew {
		return r.Create(t)
	}
	return r.Update(t)
}

// Report decodes the stored report of a transfer. It returns [shared.ErrNotFound] when the
// transfer never produced one.
func (r *TransferRepository) Report(id string) (*models.Report, error) {
	t, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if t.ReportJSON() == "" {
		return nil, fmt.Errorf("%w: transfer %s has no report", shared.ErrNotFound, id)
	}

	var report models.Report
	if err := json.Unmarshal([]byte(t.ReportJSON()), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanTransfer scans a single row into a [models.TransferRecord]
func scanTransfer(row scanner) (*models.TransferRecord, error) {
	var (
		id           string
		sequence     int
		destination  string
		mode         string
		status       string
		total        int
		completed    int
		succeeded    int
		errorMessage sql.NullString
		report       sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &destination, &mode, &status, &total, &completed,
		&succeeded, &errorMessage, &report, &startedAt, &completedAt,
		&createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}

	return models.RestoreTransferRecord(
		id, sequence, destination, mode, models.TransferStatus(status),
		total, completed, succeeded, errorMessage.String, report.String,
		timePtr(startedAt), timePtr(completedAt), createdAt, updatedAt, timePtr(deletedAt),
	), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func expectRow(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s not found or already deleted", shared.ErrNotFound, entity, id)
	}
	return nil
}

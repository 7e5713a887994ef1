package models

import (
	"errors"
	"time"
)

// TransferStatus mirrors the terminal and non-terminal session phases for archived transfers.
type TransferStatus string

const (
	StatusPending   TransferStatus = "pending"
	StatusRunning   TransferStatus = "running"
	StatusCompleted TransferStatus = "completed"
	StatusFailed    TransferStatus = "failed"
)

// TransferRecord is the archived summary of one transfer.
type TransferRecord struct {
	id           string
	sequence     int
	destination  string
	mode         string
	status       TransferStatus
	totalItems   int
	completed    int
	succeeded    int
	errorMessage string
	report       string
	startedAt    *time.Time
	completedAt  *time.Time
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewTransferRecord creates a record for a transfer that has not been persisted yet.
func NewTransferRecord(id, destination, mode string, total int) *TransferRecord {
	now := time.Now()
	return &TransferRecord{
		id:          id,
		destination: destination,
		mode:        mode,
		status:      StatusPending,
		totalItems:  total,
		createdAt:   now,
		updatedAt:   now,
	}
}

// RestoreTransferRecord rebuilds a record from stored columns.
func RestoreTransferRecord(
	id string, sequence int, destination, mode string, status TransferStatus,
	total, completed, succeeded int, errorMessage, report string,
	startedAt, completedAt *time.Time, createdAt, updatedAt time.Time, deletedAt *time.Time,
) *TransferRecord {
	return &TransferRecord{
		id:           id,
		sequence:     sequence,
		destination:  destination,
		mode:         mode,
		status:       status,
		totalItems:   total,
		completed:    completed,
		succeeded:    succeeded,
		errorMessage: errorMessage,
		report:       report,
		startedAt:    startedAt,
		completedAt:  completedAt,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
		deletedAt:    deletedAt,
	}
}

func (r *TransferRecord) ID() string              { return r.id }
func (r *TransferRecord) Sequence() int           { return r.sequence }
func (r *TransferRecord) Destination() string     { return r.destination }
func (r *TransferRecord) Mode() string            { return r.mode }
func (r *TransferRecord) Status() TransferStatus  { return r.status }
func (r *TransferRecord) TotalItems() int         { return r.totalItems }
func (r *TransferRecord) CompletedItems() int     { return r.completed }
func (r *TransferRecord) Succeeded() int          { return r.succeeded }
func (r *TransferRecord) ErrorMessage() string    { return r.errorMessage }
func (r *TransferRecord) ReportJSON() string      { return r.report }
func (r *TransferRecord) StartedAt() *time.Time   { return r.startedAt }
func (r *TransferRecord) CompletedAt() *time.Time { return r.completedAt }
func (r *TransferRecord) CreatedAt() time.Time    { return r.createdAt }
func (r *TransferRecord) UpdatedAt() time.Time    { return r.updatedAt }
func (r *TransferRecord) DeletedAt() *time.Time   { return r.deletedAt }

func (r *TransferRecord) SetID(id string)             { r.id = id }
func (r *TransferRecord) SetSequence(seq int)         { r.sequence = seq }
func (r *TransferRecord) SetUpdatedAt(t time.Time)    { r.updatedAt = t }
func (r *TransferRecord) SetReportJSON(report string) { r.report = report }

// SetProgress stores counters copied from a session snapshot.
func (r *TransferRecord) SetProgress(completed, succeeded int) {
	r.completed = completed
	r.succeeded = succeeded
}

// Start marks the record running.
func (r *TransferRecord) Start(at time.Time) {
	r.status = StatusRunning
	r.startedAt = &at
}

// Finish marks the record terminal. A non-nil err marks it failed.
func (r *TransferRecord) Finish(at time.Time, err error) {
	r.completedAt = &at
	if err != nil {
		r.status = StatusFailed
		r.errorMessage = err.Error()
		return
	}
	r.status = StatusCompleted
}

// Validate checks required fields.
func (r *TransferRecord) Validate() error {
	if r.id == "" {
		return errors.New("transfer id is required")
	}
	if r.destination == "" {
		return errors.New("destination is required")
	}
	switch r.status {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
	default:
		return errors.New("invalid transfer status: " + string(r.status))
	}
	if r.completed > r.totalItems {
		return errors.New("completed items exceed total items")
	}
	return nil
}

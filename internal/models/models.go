package models

import "time"

// Persistent is a row kept in the local database. Rows are timestamped and soft deleted.
type Persistent interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error
}

// Store is the CRUD contract of a table of [Persistent] rows.
//
// List filters on column criteria; keys a store does not know are ignored. Get and Delete return
// an error wrapping shared.ErrNotFound for unknown or deleted rows.
type Store[T Persistent] interface {
	Create(row T) error
	Get(id string) (T, error)
	Update(row T) error
	Delete(id string) error
	List(criteria map[string]any) ([]T, error)
}

var _ Persistent = (*TransferRecord)(nil)

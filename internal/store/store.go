// Package store defines the storage interfaces for qrscan's persistence layer.
// It provides abstractions for the scan history and for a small key-value
// table of store metadata.
package store

import (
	"context"
	"errors"
)

var (
	// ErrDuplicate is returned by Append when a record with the same value
	// is already persisted.
	ErrDuplicate = errors.New("value already recorded")

	// ErrNotFound is returned when a metadata key does not exist.
	ErrNotFound = errors.New("not found")
)

// HistoryStore manages scan record persistence.
// Records are append-only: there is no update and no single-record delete.
type HistoryStore interface {
	// LoadAll returns every record in insertion order (ascending ID).
	LoadAll(ctx context.Context) ([]*ScanRecord, error)

	// Append persists a new record and returns it with its assigned ID.
	// The record is durable when Append returns without error.
	// Returns ErrDuplicate if the value is already persisted.
	Append(ctx context.Context, input *AppendInput) (*ScanRecord, error)

	// Count returns the total number of records in the store.
	Count(ctx context.Context) (int, error)

	// Clear removes all records from the store.
	Clear(ctx context.Context) error

	// Close releases any resources (DB connections, file handles, etc.).
	Close() error
}

// MetaStore manages store metadata as key-value pairs.
type MetaStore interface {
	// Get retrieves a value by key.
	// Returns an error wrapping ErrNotFound if the key does not exist.
	Get(key string) (string, error)

	// Set stores a value. If the key already exists, its value is updated.
	Set(key, value string) error

	// List returns all key-value pairs.
	List() (map[string]string, error)

	// Delete removes a key.
	// Returns an error wrapping ErrNotFound if the key does not exist.
	Delete(key string) error

	// Close releases any resources.
	Close() error
}

// Store combines the history and metadata stores.
// Implementations manage their lifecycle as a single unit.
type Store interface {
	// History returns the scan history store.
	History() HistoryStore

	// Meta returns the metadata store.
	Meta() MetaStore

	// Close releases all resources for both stores.
	Close() error
}

// Well-known metadata keys.
const (
	MetaDBVersion      = "db_version"
	MetaLastExport     = "last_export"
	MetaLastExportPath = "last_export_path"
)

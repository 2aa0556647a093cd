package store

import (
	"time"
)

// DefaultTimeLayout renders capture times the way a US-English browser
// locale string does ("1/2/2006, 3:04:05 PM").
const DefaultTimeLayout = "1/2/2006, 3:04:05 PM"

// ScanRecord is one persisted scan. Records are never mutated after insert.
type ScanRecord struct {
	// ID is assigned by the store on insert and increases monotonically.
	ID uint

	// Value is the decoded text payload, stored byte-for-byte.
	Value string

	// Time is the human-readable capture time shown to the user and exported.
	Time string

	// Timestamp is the machine-readable capture time.
	Timestamp time.Time

	// SessionID identifies the capture session that produced the record.
	// Empty for records added outside a capture session.
	SessionID string

	// CreatedAt is managed by the storage layer.
	CreatedAt time.Time
}

// AppendInput contains the data needed to persist a new scan record.
type AppendInput struct {
	// Value is the decoded payload (required, non-empty).
	Value string

	// Time is the human-readable capture time.
	// If empty, the store formats Timestamp with DefaultTimeLayout.
	Time string

	// Timestamp is the capture time. If zero, the store uses the current time.
	Timestamp time.Time

	// SessionID is the optional capture session identifier.
	SessionID string
}

// Normalize fills defaults for empty fields. Stores call it before persisting.
func (in *AppendInput) Normalize(now time.Time) {
	if in.Timestamp.IsZero() {
		in.Timestamp = now
	}
	if in.Time == "" {
		in.Time = in.Timestamp.Format(DefaultTimeLayout)
	}
}

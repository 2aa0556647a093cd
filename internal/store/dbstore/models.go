package dbstore

import (
	"time"

	"github.com/yiblet/qrscan/internal/store"
)

// SchemaVersion is written to the meta table on first open.
const SchemaVersion = "1"

// ScanRecordModel represents a scan record in the database.
// The unique index on Value backs the one-record-per-value invariant even
// when several processes share the database file.
type ScanRecordModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Value     string    `gorm:"type:text;not null;uniqueIndex"`
	Time      string    `gorm:"size:64;not null"`
	Timestamp time.Time `gorm:"not null;index"`
	SessionID string    `gorm:"size:36;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for ScanRecordModel
func (ScanRecordModel) TableName() string {
	return "scans"
}

// ToScanRecord converts the GORM model to a store.ScanRecord
func (m *ScanRecordModel) ToScanRecord() *store.ScanRecord {
	return &store.ScanRecord{
		ID:        m.ID,
		Value:     m.Value,
		Time:      m.Time,
		Timestamp: m.Timestamp,
		SessionID: m.SessionID,
		CreatedAt: m.CreatedAt,
	}
}

// MetaItemModel represents a metadata key-value pair
type MetaItemModel struct {
	Key       string    `gorm:"primaryKey;size:100"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for MetaItemModel
func (MetaItemModel) TableName() string {
	return "meta"
}

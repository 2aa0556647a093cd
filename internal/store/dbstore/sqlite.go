package dbstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yiblet/qrscan/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore is a SQLite-backed implementation of store.Store
type SQLiteStore struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite-backed store at the specified path.
// The schema is created on first use; existing data is left untouched.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY between the capture goroutine
	// and the HTTP handlers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := db.AutoMigrate(&ScanRecordModel{}, &MetaItemModel{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initMeta(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to init metadata: %w", err)
	}

	return s, nil
}

// History returns the history store
func (s *SQLiteStore) History() store.HistoryStore {
	return &sqliteHistoryStore{db: s.db}
}

// Meta returns the metadata store
func (s *SQLiteStore) Meta() store.MetaStore {
	return &sqliteMetaStore{db: s.db}
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// initMeta records the schema version the first time the database is opened
func (s *SQLiteStore) initMeta() error {
	meta := s.Meta()
	if _, err := meta.Get(store.MetaDBVersion); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return meta.Set(store.MetaDBVersion, SchemaVersion)
	}
	return nil
}

// sqliteHistoryStore implements store.HistoryStore using SQLite
type sqliteHistoryStore struct {
	db *gorm.DB
}

// LoadAll returns all records ordered by ID (insertion order)
func (s *sqliteHistoryStore) LoadAll(ctx context.Context) ([]*store.ScanRecord, error) {
	var models []*ScanRecordModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	records := make([]*store.ScanRecord, len(models))
	for i, model := range models {
		records[i] = model.ToScanRecord()
	}
	return records, nil
}

// Append inserts a new record; the ID is assigned by SQLite
func (s *sqliteHistoryStore) Append(ctx context.Context, input *store.AppendInput) (*store.ScanRecord, error) {
	if input == nil || input.Value == "" {
		return nil, fmt.Errorf("failed to append record: empty value")
	}
	in := *input
	in.Normalize(time.Now())

	model := &ScanRecordModel{
		Value:     in.Value,
		Time:      in.Time,
		Timestamp: in.Timestamp,
		SessionID: in.SessionID,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to append record: %w", store.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to append record: %w", err)
	}

	return model.ToScanRecord(), nil
}

// Count returns the total number of records
func (s *sqliteHistoryStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&ScanRecordModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(count), nil
}

// Clear removes all records
func (s *sqliteHistoryStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&ScanRecordModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close releases any resources
func (s *sqliteHistoryStore) Close() error {
	return nil // No-op, parent store handles DB closing
}

// sqliteMetaStore implements store.MetaStore using SQLite
type sqliteMetaStore struct {
	db *gorm.DB
}

// Get retrieves a metadata value by key
func (s *sqliteMetaStore) Get(key string) (string, error) {
	var model MetaItemModel
	if err := s.db.First(&model, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("meta key %s: %w", key, store.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return model.Value, nil
}

// Set stores a metadata value (upsert)
func (s *sqliteMetaStore) Set(key, value string) error {
	model := &MetaItemModel{
		Key:   key,
		Value: value,
	}

	result := s.db.Where("key = ?", key).
		Assign(map[string]interface{}{"value": value, "updated_at": s.db.NowFunc()}).
		FirstOrCreate(model)

	if result.Error != nil {
		return fmt.Errorf("failed to set meta: %w", result.Error)
	}

	return nil
}

// List returns all metadata key-value pairs
func (s *sqliteMetaStore) List() (map[string]string, error) {
	var models []MetaItemModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list meta: %w", err)
	}

	result := make(map[string]string, len(models))
	for _, model := range models {
		result[model.Key] = model.Value
	}

	return result, nil
}

// Delete removes a metadata key
func (s *sqliteMetaStore) Delete(key string) error {
	result := s.db.Delete(&MetaItemModel{}, "key = ?", key)
	if result.Error != nil {
		return fmt.Errorf("failed to delete meta: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("meta key %s: %w", key, store.ErrNotFound)
	}
	return nil
}

// Close releases any resources
func (s *sqliteMetaStore) Close() error {
	return nil // No-op, parent store handles DB closing
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// TranslateError maps it to gorm.ErrDuplicatedKey; the message check covers
// driver versions that do not translate.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

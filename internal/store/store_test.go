package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// TestInterfaceCompilation verifies that the interfaces compile correctly.
func TestInterfaceCompilation(t *testing.T) {
	var _ HistoryStore = (*mockHistoryStore)(nil)
	var _ MetaStore = (*mockMetaStore)(nil)
	var _ Store = (*mockStore)(nil)
}

func TestAppendInputNormalize(t *testing.T) {
	now := time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		input     AppendInput
		wantTime  string
		wantStamp time.Time
	}{
		{
			name:      "empty input gets now",
			input:     AppendInput{Value: "A"},
			wantTime:  "3/7/2024, 3:04:05 PM",
			wantStamp: now,
		},
		{
			name:      "timestamp is kept and formatted",
			input:     AppendInput{Value: "A", Timestamp: now.Add(-time.Hour)},
			wantTime:  "3/7/2024, 2:04:05 PM",
			wantStamp: now.Add(-time.Hour),
		},
		{
			name:      "explicit time string wins",
			input:     AppendInput{Value: "A", Time: "yesterday"},
			wantTime:  "yesterday",
			wantStamp: now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			in.Normalize(now)
			if in.Time != tt.wantTime {
				t.Errorf("Time = %q, want %q", in.Time, tt.wantTime)
			}
			if !in.Timestamp.Equal(tt.wantStamp) {
				t.Errorf("Timestamp = %v, want %v", in.Timestamp, tt.wantStamp)
			}
		})
	}
}

func TestErrDuplicateWrapping(t *testing.T) {
	err := fmt.Errorf("append %q: %w", "A", ErrDuplicate)
	if !errors.Is(err, ErrDuplicate) {
		t.Error("wrapped ErrDuplicate should match errors.Is")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("ErrDuplicate must not match ErrNotFound")
	}
}

// Mock implementations for interface compilation tests

type mockHistoryStore struct{}

func (m *mockHistoryStore) LoadAll(ctx context.Context) ([]*ScanRecord, error) {
	return nil, nil
}

func (m *mockHistoryStore) Append(ctx context.Context, input *AppendInput) (*ScanRecord, error) {
	return nil, nil
}

func (m *mockHistoryStore) Count(ctx context.Context) (int, error) {
	return 0, nil
}

func (m *mockHistoryStore) Clear(ctx context.Context) error {
	return nil
}

func (m *mockHistoryStore) Close() error {
	return nil
}

type mockMetaStore struct{}

func (m *mockMetaStore) Get(key string) (string, error) {
	return "", nil
}

func (m *mockMetaStore) Set(key, value string) error {
	return nil
}

func (m *mockMetaStore) List() (map[string]string, error) {
	return nil, nil
}

func (m *mockMetaStore) Delete(key string) error {
	return nil
}

func (m *mockMetaStore) Close() error {
	return nil
}

type mockStore struct{}

func (m *mockStore) History() HistoryStore {
	return &mockHistoryStore{}
}

func (m *mockStore) Meta() MetaStore {
	return &mockMetaStore{}
}

func (m *mockStore) Close() error {
	return nil
}

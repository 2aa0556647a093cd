package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/yiblet/qrscan/internal/store"
)

func TestMemoryStore_Interface(t *testing.T) {
	var _ store.Store = NewMemoryStore()
}

func TestMemoryStore_AppendAndLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, v := range []string{"A", "B", "C"} {
		if _, err := s.History().Append(ctx, &store.AppendInput{Value: v}); err != nil {
			t.Fatalf("Append(%s) failed: %v", v, err)
		}
	}

	records, err := s.History().LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"A", "B", "C"} {
		if records[i].Value != want {
			t.Errorf("record %d = %q, want %q", i, records[i].Value, want)
		}
		if records[i].ID != uint(i+1) {
			t.Errorf("record %d ID = %d, want %d", i, records[i].ID, i+1)
		}
	}
}

func TestMemoryStore_LoadAllReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.History().Append(ctx, &store.AppendInput{Value: "A"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, _ := s.History().LoadAll(ctx)
	records[0].Value = "mutated"

	again, _ := s.History().LoadAll(ctx)
	if again[0].Value != "A" {
		t.Errorf("store was mutated through returned record: %q", again[0].Value)
	}
}

func TestMemoryStore_Duplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.History().Append(ctx, &store.AppendInput{Value: "A"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	_, err := s.History().Append(ctx, &store.AppendInput{Value: "A"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestMemoryStore_FailAppends(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("disk full")

	s.FailAppends(boom)
	if _, err := s.History().Append(ctx, &store.AppendInput{Value: "A"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if count, _ := s.History().Count(ctx); count != 0 {
		t.Errorf("expected no records after failure, got %d", count)
	}

	s.FailAppends(nil)
	if _, err := s.History().Append(ctx, &store.AppendInput{Value: "A"}); err != nil {
		t.Errorf("append after restore failed: %v", err)
	}
	if s.Appends() != 2 {
		t.Errorf("Appends() = %d, want 2", s.Appends())
	}
}

func TestMemoryStore_ClearKeepsIDsIncreasing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, _ := s.History().Append(ctx, &store.AppendInput{Value: "A"})
	if err := s.History().Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	second, err := s.History().Append(ctx, &store.AppendInput{Value: "A"})
	if err != nil {
		t.Fatalf("Append after clear failed: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("ID after clear = %d, want > %d", second.ID, first.ID)
	}
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every value is appended twice; only one may win.
			s.History().Append(ctx, &store.AppendInput{Value: fmt.Sprintf("v%d", i%25)})
		}(i)
	}
	wg.Wait()

	count, _ := s.History().Count(ctx)
	if count != 25 {
		t.Errorf("expected 25 distinct records, got %d", count)
	}
}

func TestMemoryStore_Meta(t *testing.T) {
	s := NewMemoryStore()
	meta := s.Meta()

	if _, err := meta.Get("k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := meta.Set("k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, _ := meta.Get("k"); v != "v" {
		t.Errorf("Get = %q, want v", v)
	}
	all, _ := meta.List()
	if len(all) != 1 {
		t.Errorf("List returned %d entries, want 1", len(all))
	}
	if err := meta.Delete("k"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if err := meta.Delete("k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

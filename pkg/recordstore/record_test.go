package recordstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestNextID_SameSecondSuffix(t *testing.T) {
	s := &Store{}
	now := time.Date(2026, 8, 26, 10, 15, 30, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"first in second", now, "20260826T101530Z"},
		{"second in second", now, "20260826T101530Z-1"},
		{"third in second", now, "20260826T101530Z-2"},
		{"next second resets", now.Add(time.Second), "20260826T101531Z"},
		{"suffix restarts", now.Add(time.Second), "20260826T101531Z-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.nextID(tt.at); got != tt.want {
				t.Errorf("nextID(%v) = %q, want %q", tt.at, got, tt.want)
			}
		})
	}
}

func TestRecord_Accessors(t *testing.T) {
	tests := []struct {
		name     string
		rec      Record
		wantID   string
		wantZero bool
	}{
		{"typical", Record{"id": "r1", "created_at": "2026-08-26T10:15:30Z"}, "r1", false},
		{"missing fields", Record{"score": 0.9}, "", true},
		{"non-string id", Record{"id": 7}, "", true},
		{"malformed timestamp", Record{"id": "r2", "created_at": "yesterday"}, "r2", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.ID(); got != tt.wantID {
				t.Errorf("ID() = %q, want %q", got, tt.wantID)
			}
			if got := tt.rec.CreatedAt().IsZero(); got != tt.wantZero {
				t.Errorf("CreatedAt().IsZero() = %v, want %v", got, tt.wantZero)
			}
		})
	}
}

func TestAppendRecord_AssignsIDAndTimestamp(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "q.json"), []Record{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()

	rec := Record{"score": 0.9}
	id, err := s.AppendRecord(ctx, rec, 10)
	if err != nil {
		t.Fatalf("AppendRecord failed: %v", err)
	}
	if id == "" {
		t.Fatal("assigned identifier is empty")
	}
	if _, ok := rec[FieldID]; ok {
		t.Error("caller's record was mutated")
	}

	var docs []Record
	if err := s.Read(ctx, &docs); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1", len(docs))
	}
	if docs[0].ID() != id {
		t.Errorf("stored id = %q, want %q", docs[0].ID(), id)
	}
	if docs[0].CreatedAt().IsZero() {
		t.Error("stored record has no creation timestamp")
	}
	if docs[0]["score"] != 0.9 {
		t.Errorf("payload score = %v, want 0.9", docs[0]["score"])
	}
}

func TestAppendRecord_KeepsCallerID(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "q.json"), []Record{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	id, err := s.AppendRecord(context.Background(), Record{"id": "custom-7"}, 10)
	if err != nil {
		t.Fatalf("AppendRecord failed: %v", err)
	}
	if id != "custom-7" {
		t.Errorf("id = %q, want %q", id, "custom-7")
	}
}

func TestAppendRecord_SameSecondUniqueness(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "q.json"), []Record{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id, err := s.AppendRecord(ctx, Record{"n": i}, 0)
		if err != nil {
			t.Fatalf("AppendRecord %d failed: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("duplicate identifier %q", id)
		}
		seen[id] = true
	}
}

// The canonical scenario: three appends with a cap of two leave the two most
// recent records, oldest dropped first.
func TestAppendRecord_CapEnforcement(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "q.json"), []Record{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()

	r1, err := s.AppendRecord(ctx, Record{"score": 0.9}, 2)
	if err != nil {
		t.Fatalf("append r1: %v", err)
	}
	r2, err := s.AppendRecord(ctx, Record{"score": 0.5}, 2)
	if err != nil {
		t.Fatalf("append r2: %v", err)
	}
	r3, err := s.AppendRecord(ctx, Record{"score": 0.7}, 2)
	if err != nil {
		t.Fatalf("append r3: %v", err)
	}

	var docs []Record
	if err := s.Read(ctx, &docs); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	if docs[0].ID() != r2 || docs[1].ID() != r3 {
		t.Errorf("kept [%q %q], want [%q %q]", docs[0].ID(), docs[1].ID(), r2, r3)
	}
	for _, d := range docs {
		if d.ID() == r1 {
			t.Errorf("oldest record %q survived the cap", r1)
		}
	}
}

func TestAppendRecord_CapAcrossManyAppends(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "q.json"), []Record{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()

	const n, k = 25, 5
	for i := 0; i < n; i++ {
		if _, err := s.AppendRecord(ctx, Record{"id": fmt.Sprintf("r%02d", i)}, k); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var docs []Record
	if err := s.Read(ctx, &docs); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(docs) != k {
		t.Fatalf("len(docs) = %d, want %d", len(docs), k)
	}
	for i, d := range docs {
		want := fmt.Sprintf("r%02d", n-k+i)
		if d.ID() != want {
			t.Errorf("docs[%d].ID() = %q, want %q", i, d.ID(), want)
		}
	}
}

func TestPruneOldest(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "q.json"), []Record{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := s.AppendRecord(ctx, Record{"id": fmt.Sprintf("r%d", i)}, 0); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	dropped, err := s.PruneOldest(ctx, 2)
	if err != nil {
		t.Fatalf("PruneOldest failed: %v", err)
	}
	if dropped != 4 {
		t.Errorf("dropped = %d, want 4", dropped)
	}

	var docs []Record
	if err := s.Read(ctx, &docs); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(docs) != 2 || docs[0].ID() != "r4" || docs[1].ID() != "r5" {
		t.Errorf("kept %v, want [r4 r5]", docs)
	}

	// Already within bounds: no-op.
	dropped, err = s.PruneOldest(ctx, 2)
	if err != nil {
		t.Fatalf("PruneOldest (no-op) failed: %v", err)
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
}

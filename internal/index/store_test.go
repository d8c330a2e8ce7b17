package index

import (
	"context"
	"testing"
)

func TestMemoryStore_ReplaceAndRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	recs := []Record{
		{ID: 0, Text: "a", Vector: []float32{1, 0}},
		{ID: 1, Text: "b", Vector: []float32{0, 1}},
	}
	if err := s.Replace(ctx, recs); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got, err := s.Records(ctx)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	// a second Replace fully supersedes the first
	if err := s.Replace(ctx, recs[:1]); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err = s.Records(ctx)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 1 || got[0].Text != "a" {
		t.Errorf("expected only record \"a\" after replace, got %v", got)
	}
}

func TestMemoryStore_RecordsIsolatedFromCaller(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Replace(ctx, []Record{{ID: 0, Text: "a"}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got, _ := s.Records(ctx)
	got[0].Text = "mutated"

	again, _ := s.Records(ctx)
	if again[0].Text != "a" {
		t.Error("store contents were mutated through a returned slice")
	}
}

func TestRecordFromFields(t *testing.T) {
	rec, err := recordFromFields(map[string]string{
		"id":     "7",
		"text":   "x: 1 | y: 2",
		"vector": "[0.5,0.5]",
	})
	if err != nil {
		t.Fatalf("recordFromFields: %v", err)
	}
	if rec.ID != 7 || rec.Text != "x: 1 | y: 2" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if len(rec.Vector) != 2 || rec.Vector[0] != 0.5 {
		t.Errorf("unexpected vector: %v", rec.Vector)
	}
}

func TestRecordFromFields_BadVector(t *testing.T) {
	_, err := recordFromFields(map[string]string{"id": "0", "vector": "not json"})
	if err == nil {
		t.Fatal("expected error for malformed vector")
	}
}

package txlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"score-trader/internal/types"
)

func TestRecordAppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	p := types.Position{ID: "pos-1", Symbol: "BTC-USD", Side: types.Short, Qty: 10, EntryPrice: 100}
	events := []types.Event{
		{Type: types.EventOpen, Position: &p, Reason: "SHORT entry approved"},
		{Type: types.EventClose, Position: &p, Reason: "STOP_LOSS"},
		{Type: types.EventReject, Symbol: "ETH-USD", Reason: "max short positions reached (3)"},
	}
	for _, e := range events {
		if err := l.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := l.ReadDay(time.Now())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Type != types.EventOpen || got[2].Type != types.EventReject {
		t.Errorf("event order not preserved: %+v", got)
	}
	if got[0].Position == nil || got[0].Position.ID != "pos-1" {
		t.Error("position snapshot not round-tripped")
	}
	if got[0].Time.IsZero() {
		t.Error("record should stamp the event time")
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	old := filepath.Join(dir, "2026-01-01.jsonl")
	if err := os.WriteFile(old, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	if err := l.CompressOlder(7); err != nil {
		t.Fatalf("compress: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("original file should be removed after compression")
	}
	if _, err := os.Stat(old + ".gz"); err != nil {
		t.Errorf("gz file missing: %v", err)
	}
}

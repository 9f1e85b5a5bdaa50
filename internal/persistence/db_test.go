package persistence

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/talgya/burzen-core/internal/cells"
	"github.com/talgya/burzen-core/internal/codex"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tokenAt(step int) string {
	s := cells.New(3)
	for i := 0; i < step; i++ {
		cells.Step(s, 0.5)
	}
	return codex.Encode(cells.Export(s))
}

func TestAppendAndReadTokens(t *testing.T) {
	db := openTestDB(t)
	run := NewRunID()

	for tick := uint64(10); tick <= 30; tick += 10 {
		if err := db.AppendToken(run, tick, tokenAt(int(tick))); err != nil {
			t.Fatalf("AppendToken(%d): %v", tick, err)
		}
	}

	last, ok, err := db.LastTick(run)
	if err != nil || !ok || last != 30 {
		t.Fatalf("LastTick = %d, %v, %v", last, ok, err)
	}

	recs, err := db.RunTokens(run)
	if err != nil {
		t.Fatalf("RunTokens: %v", err)
	}
	if len(recs) != 3 || recs[0].Tick != 10 || recs[2].Tick != 30 {
		t.Fatalf("RunTokens = %+v", recs)
	}
	if recs[1].Token != tokenAt(20) || recs[1].Checksum != recs[1].Token[len(recs[1].Token)-8:] {
		t.Fatalf("record = %+v", recs[1])
	}

	recent, err := db.RecentTokens(2)
	if err != nil {
		t.Fatalf("RecentTokens: %v", err)
	}
	if len(recent) != 2 || recent[0].Tick != 30 {
		t.Fatalf("RecentTokens = %+v", recent)
	}
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	db := openTestDB(t)
	run := NewRunID()
	if err := db.AppendToken(run, 5, tokenAt(1)); err != nil {
		t.Fatal(err)
	}
	for _, tick := range []uint64{5, 4} {
		err := db.AppendToken(run, tick, tokenAt(2))
		if !codex.IsRejection(err, codex.RejectOrder) {
			t.Fatalf("tick %d err = %v, want ORDER rejection", tick, err)
		}
	}

	// A different run has its own ordering.
	if err := db.AppendToken(NewRunID(), 1, tokenAt(1)); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestAppendRejectsBadToken(t *testing.T) {
	db := openTestDB(t)
	good := tokenAt(1)
	bad := good[:len(good)-1] + "x"
	err := db.AppendToken(NewRunID(), 1, bad)
	var rej *codex.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want rejection", err)
	}
}

func TestLastTickEmptyRun(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.LastTick("nobody")
	if err != nil || ok {
		t.Fatalf("LastTick on empty run = %v, %v", ok, err)
	}
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetMeta("current_run"); !errors.Is(err, ErrNoMeta) {
		t.Fatalf("GetMeta missing = %v", err)
	}

	prev, err := db.StartRun("run-a")
	if err != nil || prev != "" {
		t.Fatalf("StartRun first = %q, %v", prev, err)
	}
	prev, err = db.StartRun("run-b")
	if err != nil || prev != "run-a" {
		t.Fatalf("StartRun second = %q, %v", prev, err)
	}
	if v, _ := db.GetMeta("current_run"); v != "run-b" {
		t.Fatalf("current_run = %q", v)
	}
}

func TestExportJournalRoundTrip(t *testing.T) {
	db := openTestDB(t)
	run := NewRunID()
	for tick := uint64(1); tick <= 4; tick++ {
		if err := db.AppendToken(run, tick, tokenAt(int(tick))); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.AppendToken(NewRunID(), 1, tokenAt(9)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := db.ExportJournal(&buf, run)
	if err != nil || n != 4 {
		t.Fatalf("ExportJournal = %d, %v", n, err)
	}

	recs, err := ReadJournal(&buf)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("read %d records", len(recs))
	}
	for i, rec := range recs {
		if rec.RunID != run || rec.Tick != uint64(i+1) {
			t.Fatalf("record %d = %+v", i, rec)
		}
		if _, err := codex.Decode(rec.Token); err != nil {
			t.Fatalf("archived token %d does not decode: %v", i, err)
		}
	}
}

func TestExportJournalFile(t *testing.T) {
	db := openTestDB(t)
	run := NewRunID()
	if err := db.AppendToken(run, 1, tokenAt(1)); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "archive", "run.jsonl.zst")
	n, err := db.ExportJournalFile(path, run)
	if err != nil || n != 1 {
		t.Fatalf("ExportJournalFile = %d, %v", n, err)
	}
}

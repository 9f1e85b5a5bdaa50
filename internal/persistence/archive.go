package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// ExportJournal writes every token of runID to w as zstd-compressed JSONL and
// returns the number of records written.
func (db *DB) ExportJournal(w io.Writer, runID string) (int, error) {
	records, err := db.RunTokens(runID)
	if err != nil {
		return 0, fmt.Errorf("load run tokens: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(enc)
	je := json.NewEncoder(bw)
	for _, rec := range records {
		if err := je.Encode(rec); err != nil {
			_ = enc.Close()
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ExportJournalFile writes the run's archive to path, creating parent directories.
func (db *DB) ExportJournalFile(path, runID string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := db.ExportJournal(f, runID)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// ReadJournal decodes an archive produced by ExportJournal.
func ReadJournal(r io.Reader) ([]TokenRecord, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var records []TokenRecord
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec TokenRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, sc.Err()
}

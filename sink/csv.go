package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/use-agent/recoveryfinder/models"
)

// CSV appends records to a CSV file. The header is written only when the
// file is new or empty, so repeated runs keep appending to the same table.
type CSV struct {
	f *os.File
	w *csv.Writer
}

// OpenCSV opens path for appending, creating it and its directory if needed.
func OpenCSV(path string) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	s := &CSV{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.write(models.RecordHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return s, nil
}

func (s *CSV) Append(rec models.Record) error {
	return s.write(rec.Values())
}

func (s *CSV) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *CSV) Close() error {
	s.w.Flush()
	flushErr := s.w.Error()
	if err := s.f.Close(); err != nil {
		return err
	}
	return flushErr
}

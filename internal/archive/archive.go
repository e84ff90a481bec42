// Package archive persists trade tables as dated CSV files.
//
// One file exists per calendar date: <directory>/<prefix>_<YYYY-MM-DD>.csv. A run writes
// to a temporary file in the same directory and renames it over the target, so readers and
// concurrent runs only ever see one complete run's content.
package archive

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	archerr "github.com/johnayoung/go-trades-archiver/internal/errors"
	"github.com/johnayoung/go-trades-archiver/internal/table"
)

const (
	// DefaultPrefix is the file name prefix used when Config.FilePrefix is empty
	DefaultPrefix = "api_trades"

	dateLayout = "2006-01-02"
	fileMode   = 0644
)

// Config configures a Writer.
type Config struct {
	Directory  string
	FilePrefix string
	Location   *time.Location // zone that decides the file date, nil means UTC
}

// Writer writes tables to the archive directory.
type Writer struct {
	dir    string
	prefix string
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewWriter creates a Writer. The directory is checked on every Write, not here.
func NewWriter(cfg Config, logger *slog.Logger) *Writer {
	prefix := cfg.FilePrefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		dir:    cfg.Directory,
		prefix: prefix,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the clock used to pick the file date.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// FileName returns the archive file name for the date of t in the writer's zone.
func (w *Writer) FileName(t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", w.prefix, t.In(w.loc).Format(dateLayout))
}

// Write stores tbl as today's archive file and returns its absolute path.
// An existing file for the same date is replaced.
func (w *Writer) Write(ctx context.Context, tbl *table.Table) (string, error) {
	const op = "write archive"

	if err := ctx.Err(); err != nil {
		return "", archerr.Destination(op, err)
	}
	if tbl == nil {
		tbl = &table.Table{}
	}

	dir, err := filepath.Abs(w.dir)
	if err != nil {
		return "", archerr.Destination(op, fmt.Errorf("failed to resolve directory %q: %w", w.dir, err))
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", archerr.Destination(op, fmt.Errorf("directory %s is not usable: %w", dir, err))
	}
	if !info.IsDir() {
		return "", archerr.Destination(op, fmt.Errorf("%s is not a directory", dir))
	}

	target := filepath.Join(dir, w.FileName(w.now()))

	n, err := writeAtomic(dir, target, tbl)
	if err != nil {
		return "", archerr.Destination(op, err)
	}

	w.logger.Info("archive file written",
		"path", target,
		"rows", tbl.Len(),
		"columns", len(tbl.Columns),
		"bytes", n)

	return target, nil
}

// writeAtomic encodes tbl into a temporary file next to target and renames it into place.
func writeAtomic(dir, target string, tbl *table.Table) (int64, error) {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	counter := &countingWriter{w: tmp}
	if err := EncodeCSV(counter, tbl); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		return 0, fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		committed = true
		return 0, fmt.Errorf("failed to move archive into place: %w", err)
	}

	committed = true
	return counter.n, nil
}

// EncodeCSV writes the header and rows of tbl as comma-separated UTF-8 text.
// A table without columns writes nothing.
func EncodeCSV(w io.Writer, tbl *table.Table) error {
	records := tbl.Records()
	if len(records) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to encode csv: %w", err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

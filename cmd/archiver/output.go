package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/johnayoung/go-trades-archiver/internal/ledger"
	"github.com/mattn/go-runewidth"
)

// Output formatting functions

const (
	timeLayout     = "2006-01-02 15:04:05"
	maxDetailWidth = 60
)

var historyHeader = []string{"started_at", "run_id", "symbol", "status", "rows", "duration", "object_key", "error"}

// outputJSON formats runs as JSON
func outputJSON(w io.Writer, runs []ledger.Run) error {
	if runs == nil {
		runs = []ledger.Run{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(runs)
}

// outputCSV formats runs as CSV
func outputCSV(w io.Writer, runs []ledger.Run) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeader); err != nil {
		return err
	}
	for _, run := range runs {
		record := []string{
			run.StartedAt.UTC().Format(time.RFC3339),
			run.ID,
			run.Symbol,
			string(run.Status),
			strconv.Itoa(run.Rows),
			run.Duration().String(),
			run.ObjectKey,
			run.Error,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// outputTable formats runs as an aligned table followed by totals. Widths are measured
// in terminal cells so wide characters in error messages keep the columns aligned.
func outputTable(w io.Writer, runs []ledger.Run, stats *ledger.Stats) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded yet.")
		return err
	}

	header := []string{"STARTED", "SYMBOL", "STATUS", "ROWS", "DURATION", "DETAIL"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		detail := run.ObjectKey
		if run.Status == ledger.StatusFailed {
			detail = run.FailureKind + ": " + run.Error
		}
		rows = append(rows, []string{
			run.StartedAt.UTC().Format(timeLayout),
			run.Symbol,
			string(run.Status),
			strconv.Itoa(run.Rows),
			run.Duration().Round(time.Millisecond).String(),
			runewidth.Truncate(singleLine(detail), maxDetailWidth, "…"),
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	writeRow := func(cells []string) {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			if i == len(cells)-1 {
				padded[i] = cell
				continue
			}
			padded[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(padded, "  "), " "))
	}

	writeRow(header)
	total := 0
	for _, width := range widths {
		total += width + 2
	}
	fmt.Fprintln(w, strings.Repeat("-", total-2))
	for _, row := range rows {
		writeRow(row)
	}

	if stats != nil {
		fmt.Fprintf(w, "\n%d runs total, %d succeeded, %d failed, %d trades archived\n",
			stats.TotalRuns, stats.Succeeded, stats.Failed, stats.TotalRows)
		if !stats.LastSuccessAt.IsZero() {
			fmt.Fprintf(w, "Last success: %s\n", stats.LastSuccessAt.UTC().Format(timeLayout))
		}
	}

	return nil
}

// singleLine collapses line breaks so one run stays on one table row
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package table turns a raw JSON trade list into a rectangular table.
//
// Columns are the union of every record's keys in first-seen order, rows map 1:1 to the
// input records, and a key missing from a record (or set to null) is an empty cell.
package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	archerr "github.com/johnayoung/go-trades-archiver/internal/errors"
)

// Row holds one record's cells keyed by column name. Absent keys are empty cells.
type Row map[string]string

// Table is an ordered set of columns and rows built from a trade list.
type Table struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns the cells of one column in row order, or nil when the column is unknown.
func (t *Table) Column(name string) []string {
	if !t.HasColumn(name) {
		return nil
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[name]
	}
	return values
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Value returns the cell at row i and the named column.
func (t *Table) Value(i int, column string) string {
	if t == nil || i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i][column]
}

// Records returns the header followed by one slice per row, all in column order.
// A table without columns yields no records at all.
func (t *Table) Records() [][]string {
	if t == nil || len(t.Columns) == 0 {
		return nil
	}
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, append([]string(nil), t.Columns...))
	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			record[j] = row[c]
		}
		records = append(records, record)
	}
	return records
}

// Build parses raw as a JSON array of objects and returns the resulting table.
// Anything other than an array of objects is an input-shape error.
func Build(raw json.RawMessage) (*Table, error) {
	const op = "build table"

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, archerr.InputShape(op, fmt.Errorf("malformed JSON: %w", err))
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, archerr.InputShape(op, fmt.Errorf("expected a JSON array of trades, got %s", kindOfToken(tok)))
	}

	t := &Table{Columns: []string{}, Rows: []Row{}}
	seen := make(map[string]struct{})

	for index := 0; dec.More(); index++ {
		tok, err := dec.Token()
		if err != nil {
			return nil, archerr.InputShape(op, fmt.Errorf("malformed JSON at element %d: %w", index, err))
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '{' {
			return nil, archerr.InputShape(op, fmt.Errorf("element %d is %s, expected an object", index, kindOfToken(tok)))
		}

		row, err := readObject(dec, func(key string) {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				t.Columns = append(t.Columns, key)
			}
		})
		if err != nil {
			return nil, archerr.InputShape(op, fmt.Errorf("malformed JSON at element %d: %w", index, err))
		}
		t.Rows = append(t.Rows, row)
	}

	// closing ']'
	if _, err := dec.Token(); err != nil {
		return nil, archerr.InputShape(op, fmt.Errorf("malformed JSON: %w", err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, archerr.InputShape(op, fmt.Errorf("unexpected data after the trade list"))
	}

	return t, nil
}

// readObject consumes the members of an object whose '{' was already read.
func readObject(dec *json.Decoder, onKey func(string)) (Row, error) {
	row := make(Row)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		cell, present, err := renderCell(value)
		if err != nil {
			return nil, err
		}

		onKey(key)
		if present {
			row[key] = cell
		} else {
			delete(row, key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return row, nil
}

// renderCell converts one JSON value to its CSV cell text. A null reports present=false.
func renderCell(value json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return "", false, fmt.Errorf("empty value")
	}

	switch trimmed[0] {
	case 'n':
		return "", false, nil
	case 't', 'f':
		return string(trimmed), true, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	case '[', '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", false, err
		}
		return buf.String(), true, nil
	default:
		// numbers keep their literal text
		return string(trimmed), true, nil
	}
}

func kindOfToken(tok json.Token) string {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return "an object"
		case '[':
			return "an array"
		}
		return fmt.Sprintf("delimiter %q", rune(v))
	case string:
		return "a string"
	case json.Number, float64:
		return "a number"
	case bool:
		return "a boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

package archive

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	archerr "github.com/johnayoung/go-trades-archiver/internal/errors"
	"github.com/johnayoung/go-trades-archiver/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWriter(dir string) *Writer {
	return NewWriter(Config{Directory: dir}, createTestLogger()).WithClock(func() time.Time { return fixedNow })
}

func mustBuild(t *testing.T, raw string) *table.Table {
	t.Helper()
	tbl, err := table.Build(json.RawMessage(raw))
	require.NoError(t, err)
	return tbl
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriter_Write(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		tbl := mustBuild(t, `[{"price":"100","qty":"1"},{"price":"101","qty":"2"}]`)

		path, err := newTestWriter(dir).Write(context.Background(), tbl)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, "api_trades_2024-03-09.csv"), path)
		assert.True(t, filepath.IsAbs(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "price,qty\n100,1\n101,2\n", string(data))
	})

	t.Run("values needing quotes survive", func(t *testing.T) {
		dir := t.TempDir()
		tbl := mustBuild(t, `[{"note":"a,b","quote":"say \"hi\"","multi":"x\ny","num":1.50}]`)

		path, err := newTestWriter(dir).Write(context.Background(), tbl)
		require.NoError(t, err)

		assert.Equal(t, [][]string{
			{"note", "quote", "multi", "num"},
			{"a,b", `say "hi"`, "x\ny", "1.50"},
		}, readCSV(t, path))
	})

	t.Run("empty table writes an empty file", func(t *testing.T) {
		dir := t.TempDir()

		path, err := newTestWriter(dir).Write(context.Background(), mustBuild(t, `[]`))
		require.NoError(t, err)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Zero(t, info.Size())
	})

	t.Run("same date overwrites", func(t *testing.T) {
		dir := t.TempDir()
		w := newTestWriter(dir)

		first, err := w.Write(context.Background(), mustBuild(t, `[{"a":1},{"a":2},{"a":3}]`))
		require.NoError(t, err)
		second, err := w.Write(context.Background(), mustBuild(t, `[{"b":9}]`))
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, [][]string{{"b"}, {"9"}}, readCSV(t, second))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary files must not be left behind")
	})

	t.Run("file date follows the configured zone", func(t *testing.T) {
		dir := t.TempDir()
		loc := time.FixedZone("UTC+3", 3*60*60)
		w := NewWriter(Config{Directory: dir, FilePrefix: "trades", Location: loc}, createTestLogger()).
			WithClock(func() time.Time { return fixedNow })

		path, err := w.Write(context.Background(), mustBuild(t, `[{"a":1}]`))
		require.NoError(t, err)
		assert.Equal(t, "trades_2024-03-10.csv", filepath.Base(path))
	})

	t.Run("file mode is world readable", func(t *testing.T) {
		dir := t.TempDir()
		path, err := newTestWriter(dir).Write(context.Background(), mustBuild(t, `[{"a":1}]`))
		require.NoError(t, err)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(fileMode), info.Mode().Perm())
	})
}

func TestWriter_DestinationErrors(t *testing.T) {
	tbl := &table.Table{Columns: []string{"a"}, Rows: []table.Row{{"a": "1"}}}

	t.Run("missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "does", "not", "exist")
		_, err := newTestWriter(dir).Write(context.Background(), tbl)
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrDestination)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("path is a regular file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		_, err := newTestWriter(file).Write(context.Background(), tbl)
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrDestination)
		assert.Contains(t, err.Error(), "is not a directory")
	})

	t.Run("target name is taken by a directory", func(t *testing.T) {
		dir := t.TempDir()
		w := newTestWriter(dir)
		require.NoError(t, os.Mkdir(filepath.Join(dir, w.FileName(fixedNow)), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, w.FileName(fixedNow), "keep"), []byte("x"), 0644))

		_, err := w.Write(context.Background(), tbl)
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrDestination)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary file must be cleaned up")
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestWriter(t.TempDir()).Write(ctx, tbl)
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrDestination)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWriter_NilTable(t *testing.T) {
	path, err := newTestWriter(t.TempDir()).Write(context.Background(), nil)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestWriter_FileName(t *testing.T) {
	w := NewWriter(Config{Directory: "."}, nil)
	assert.Equal(t, "api_trades_2024-03-09.csv", w.FileName(fixedNow))
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/johnayoung/go-trades-archiver/internal/archive"
	archerr "github.com/johnayoung/go-trades-archiver/internal/errors"
	"github.com/johnayoung/go-trades-archiver/internal/events"
	"github.com/johnayoung/go-trades-archiver/internal/exchange"
	"github.com/johnayoung/go-trades-archiver/internal/ledger"
	"github.com/johnayoung/go-trades-archiver/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const examplePayload = `[{"price":"100","qty":"1"},{"price":"101","qty":"2"}]`

var fixedNow = time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubFetcher struct {
	raw json.RawMessage
	err error
}

func (s *stubFetcher) FetchTrades(_ context.Context, _ string) (json.RawMessage, error) {
	return s.raw, s.err
}

type stubUploader struct {
	calls []string
	err   error
}

func (s *stubUploader) Upload(_ context.Context, localPath string) (*upload.Result, error) {
	s.calls = append(s.calls, localPath)
	if s.err != nil {
		return nil, s.err
	}
	return &upload.Result{Bucket: "bucket", Key: upload.ObjectKey("trades", localPath)}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ArchiveEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e events.ArchiveEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

type failingLedger struct{ *ledger.MemoryLedger }

func (failingLedger) Record(context.Context, ledger.Run) error { return errors.New("ledger down") }

func newWriter(dir string) *archive.Writer {
	return archive.NewWriter(archive.Config{Directory: dir}, createTestLogger()).
		WithClock(func() time.Time { return fixedNow })
}

func newBuilder(fetcher exchange.TradeFetcher, dir string, up upload.Uploader) *Builder {
	return NewBuilder().
		WithFetcher(fetcher).
		WithPersister(newWriter(dir)).
		WithUploader(up).
		WithSymbol("BTC-BRL").
		WithLogger(createTestLogger()).
		WithClock(func() time.Time { return fixedNow }).
		WithIDGenerator(func() string { return "run-1" })
}

// TestPipeline_EndToEnd drives the real fetcher, writer and S3 uploader against local fakes
func TestPipeline_EndToEnd(t *testing.T) {
	exchangeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/BTC-BRL/trades", r.URL.Path)
		_, _ = io.WriteString(w, examplePayload)
	}))
	defer exchangeServer.Close()

	var mu sync.Mutex
	stored := map[string]string{}
	s3Server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		stored[r.URL.Path] = string(body)
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer s3Server.Close()

	fetcher, err := exchange.NewRESTClient(exchange.ClientConfig{BaseURL: exchangeServer.URL + "/api/v4"}, createTestLogger())
	require.NoError(t, err)

	uploader, err := upload.NewS3Uploader(context.Background(), upload.Config{
		Bucket:          "mercadobitcoin-api",
		Folder:          "trades",
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Endpoint:        s3Server.URL,
		UsePathStyle:    true,
	}, createTestLogger())
	require.NoError(t, err)

	dir := t.TempDir()
	runs := ledger.NewMemoryLedger()
	publisher := &recordingPublisher{}

	p, err := newBuilder(fetcher, dir, uploader).WithLedger(runs).WithPublisher(publisher).Build()
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, []string{"price", "qty"}, report.Columns)
	assert.Equal(t, filepath.Join(dir, "api_trades_2024-03-09.csv"), report.FilePath)
	require.NotNil(t, report.Object)
	assert.Equal(t, "trades/api_trades_2024-03-09.csv", report.Object.Key)

	data, err := os.ReadFile(report.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "price,qty\n100,1\n101,2\n", string(data))

	mu.Lock()
	assert.Equal(t, string(data), stored["/mercadobitcoin-api/trades/api_trades_2024-03-09.csv"])
	mu.Unlock()

	run, err := runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, ledger.StatusSucceeded, run.Status)
	assert.Equal(t, "trades/api_trades_2024-03-09.csv", run.ObjectKey)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, events.TypeArchiveCompleted, publisher.events[0].Type)
	assert.Equal(t, "mercadobitcoin-api", publisher.events[0].Bucket)
}

func TestPipeline_Failures(t *testing.T) {
	t.Run("data source failure stops before anything is written", func(t *testing.T) {
		dir := t.TempDir()
		up := &stubUploader{}
		runs := ledger.NewMemoryLedger()
		publisher := &recordingPublisher{}
		fetchErr := archerr.DataSource("fetch trades", errors.New("connection refused"))

		p, err := newBuilder(&stubFetcher{err: fetchErr}, dir, up).WithLedger(runs).WithPublisher(publisher).Build()
		require.NoError(t, err)

		report, err := p.Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrDataSource)
		require.NotNil(t, report)
		assert.Empty(t, report.FilePath)
		assert.Empty(t, up.calls)

		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries)

		run, _ := runs.Get(context.Background(), "run-1")
		require.NotNil(t, run)
		assert.Equal(t, ledger.StatusFailed, run.Status)
		assert.Equal(t, "data_source", run.FailureKind)

		require.Len(t, publisher.events, 1)
		assert.Equal(t, events.TypeArchiveFailed, publisher.events[0].Type)
	})

	t.Run("input shape failure", func(t *testing.T) {
		p, err := newBuilder(&stubFetcher{raw: json.RawMessage(`{"error":"oops"}`)}, t.TempDir(), &stubUploader{}).Build()
		require.NoError(t, err)

		_, err = p.Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrInputShape)
	})

	t.Run("destination failure", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "missing")
		up := &stubUploader{}
		p, err := newBuilder(&stubFetcher{raw: json.RawMessage(examplePayload)}, missing, up).Build()
		require.NoError(t, err)

		report, err := p.Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrDestination)
		assert.Equal(t, 2, report.Rows)
		assert.Empty(t, up.calls)
	})

	t.Run("upload failure leaves the csv on disk", func(t *testing.T) {
		dir := t.TempDir()
		up := &stubUploader{err: archerr.Upload("upload archive", errors.New("AccessDenied"))}
		p, err := newBuilder(&stubFetcher{raw: json.RawMessage(examplePayload)}, dir, up).Build()
		require.NoError(t, err)

		report, err := p.Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrUpload)
		assert.FileExists(t, report.FilePath)
		assert.Nil(t, report.Object)
	})
}

func TestPipeline_BookkeepingNeverFailsARun(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker unavailable")}
	p, err := newBuilder(&stubFetcher{raw: json.RawMessage(examplePayload)}, t.TempDir(), &stubUploader{}).
		WithLedger(failingLedger{ledger.NewMemoryLedger()}).
		WithPublisher(publisher).
		Build()
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.PublishError, "broker unavailable")
}

func TestPipeline_EmptyTradeList(t *testing.T) {
	up := &stubUploader{}
	p, err := newBuilder(&stubFetcher{raw: json.RawMessage(`[]`)}, t.TempDir(), up).Build()
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Rows)
	assert.Empty(t, report.Columns)
	require.Len(t, up.calls, 1)

	info, err := os.Stat(report.FilePath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestBuilder_RequiresStages(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err)

	_, err = NewBuilder().WithFetcher(&stubFetcher{}).WithPersister(newWriter(t.TempDir())).WithUploader(&stubUploader{}).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol is required")

	p, err := NewBuilder().WithFetcher(&stubFetcher{}).WithPersister(newWriter(t.TempDir())).
		WithUploader(&stubUploader{}).WithSymbol("BTC-BRL").Build()
	require.NoError(t, err)
	assert.Equal(t, "BTC-BRL", p.Symbol())
}

type recordingObserver struct {
	kinds []string
	rows  []int
}

func (o *recordingObserver) ObserveRun(_ string, rows int, _ time.Duration, failureKind string) {
	o.kinds = append(o.kinds, failureKind)
	o.rows = append(o.rows, rows)
}

func TestPipeline_NotifiesObserver(t *testing.T) {
	observer := &recordingObserver{}

	ok, err := newBuilder(&stubFetcher{raw: json.RawMessage(examplePayload)}, t.TempDir(), &stubUploader{}).
		WithObserver(observer).Build()
	require.NoError(t, err)
	_, err = ok.Run(context.Background())
	require.NoError(t, err)

	failing, err := newBuilder(&stubFetcher{raw: json.RawMessage(`"nope"`)}, t.TempDir(), &stubUploader{}).
		WithObserver(observer).Build()
	require.NoError(t, err)
	_, err = failing.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"", "input_shape"}, observer.kinds)
	assert.Equal(t, []int{2, 0}, observer.rows)
}

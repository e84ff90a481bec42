package exchange

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	archerr "github.com/johnayoung/go-trades-archiver/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	btcBRL       = "BTC-BRL"
	tradesSample = `[{"tid":1,"date":1700000000,"type":"buy","price":"190000.5","amount":"0.001"},{"tid":2,"date":1700000001,"type":"sell","price":"190001","amount":"0.2"}]`
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// createMockServer returns a server that answers every request with handler
func createMockServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string) *RESTClient {
	t.Helper()
	client, err := NewRESTClient(ClientConfig{BaseURL: baseURL, Timeout: 2 * time.Second}, createTestLogger())
	require.NoError(t, err)
	return client
}

func TestNewRESTClient(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"https root", "https://api.mercadobitcoin.net/api/v4", false},
		{"trailing slash tolerated", "https://api.mercadobitcoin.net/api/v4/", false},
		{"empty", "", true},
		{"relative", "api/v4", true},
		{"unsupported scheme", "ftp://example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewRESTClient(ClientConfig{BaseURL: tt.baseURL}, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "https://api.mercadobitcoin.net/api/v4/BTC-BRL/trades", client.TradesURL(btcBRL))
			assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
		})
	}
}

func TestRESTClient_FetchTrades(t *testing.T) {
	t.Run("returns body verbatim", func(t *testing.T) {
		var gotPath, gotAccept, gotUA string
		server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAccept = r.Header.Get("Accept")
			gotUA = r.Header.Get("User-Agent")
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, tradesSample)
		})

		raw, err := newTestClient(t, server.URL+"/api/v4").FetchTrades(context.Background(), btcBRL)
		require.NoError(t, err)
		assert.Equal(t, tradesSample, string(raw))
		assert.Equal(t, "/api/v4/BTC-BRL/trades", gotPath)
		assert.Equal(t, "application/json", gotAccept)
		assert.Equal(t, DefaultUserAgent, gotUA)
	})

	t.Run("empty array is not an error", func(t *testing.T) {
		server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "[]")
		})

		raw, err := newTestClient(t, server.URL).FetchTrades(context.Background(), btcBRL)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(raw))
	})

	t.Run("shape is not enforced", func(t *testing.T) {
		server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"error":"not a list"}`)
		})

		raw, err := newTestClient(t, server.URL).FetchTrades(context.Background(), btcBRL)
		require.NoError(t, err)
		assert.JSONEq(t, `{"error":"not a list"}`, string(raw))
	})

	errorCases := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"not found", http.StatusNotFound, `{"message":"unknown symbol"}`, "unexpected status 404"},
		{"server error", http.StatusInternalServerError, "oops", "unexpected status 500"},
		{"invalid json", http.StatusOK, "<html>maintenance</html>", "not valid JSON"},
		{"empty body", http.StatusOK, "", "not valid JSON"},
	}

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			raw, err := newTestClient(t, server.URL).FetchTrades(context.Background(), btcBRL)
			require.Error(t, err)
			assert.Nil(t, raw)
			assert.ErrorIs(t, err, archerr.ErrDataSource)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}

	t.Run("long error bodies are truncated", func(t *testing.T) {
		server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, strings.Repeat("x", 4*maxErrorBody))
		})

		_, err := newTestClient(t, server.URL).FetchTrades(context.Background(), btcBRL)
		require.Error(t, err)
		assert.Less(t, len(err.Error()), 2*maxErrorBody)
	})

	t.Run("truncation keeps multi-byte characters whole", func(t *testing.T) {
		server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "x"+strings.Repeat("é", maxErrorBody))
		})

		_, err := newTestClient(t, server.URL).FetchTrades(context.Background(), btcBRL)
		require.Error(t, err)
		assert.True(t, utf8.ValidString(err.Error()))
		assert.Contains(t, err.Error(), "é...")
	})

	t.Run("unreachable host", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := newTestClient(t, url).FetchTrades(context.Background(), btcBRL)
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrDataSource)
		assert.Equal(t, archerr.CauseNetwork, archerr.Classify(err))
	})

	t.Run("canceled context", func(t *testing.T) {
		server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "[]")
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newTestClient(t, server.URL).FetchTrades(ctx, btcBRL)
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrDataSource)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("blank symbol", func(t *testing.T) {
		_, err := newTestClient(t, "http://127.0.0.1:1").FetchTrades(context.Background(), "  ")
		require.Error(t, err)
		assert.ErrorIs(t, err, archerr.ErrDataSource)
	})

	t.Run("symbol is path escaped", func(t *testing.T) {
		var rawPath string
		server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
			rawPath = r.URL.EscapedPath()
			_, _ = io.WriteString(w, "[]")
		})

		_, err := newTestClient(t, server.URL).FetchTrades(context.Background(), "BTC/BRL")
		require.NoError(t, err)
		assert.Equal(t, "/BTC%2FBRL/trades", rawPath)
	})
}

func TestRESTClient_ImplementsTradeFetcher(t *testing.T) {
	var _ TradeFetcher = (*RESTClient)(nil)
}

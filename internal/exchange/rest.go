package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	archerr "github.com/johnayoung/go-trades-archiver/internal/errors"
)

// RESTClient fetches trades with a single GET per call. There is no retry, pagination or
// rate limiting; the HTTP client timeout and the context are the only bounds.
type RESTClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *slog.Logger
}

// NewRESTClient creates a client for the given API root.
func NewRESTClient(cfg ClientConfig, logger *slog.Logger) (*RESTClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RESTClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:   base,
		userAgent: userAgent,
		logger:    logger,
	}, nil
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func (c *RESTClient) WithHTTPClient(client *http.Client) *RESTClient {
	c.httpClient = client
	return c
}

// TradesURL returns the endpoint queried for symbol.
func (c *RESTClient) TradesURL(symbol string) string {
	return c.baseURL + fmt.Sprintf(tradesEndpoint, url.PathEscape(symbol))
}

// FetchTrades implements TradeFetcher.
func (c *RESTClient) FetchTrades(ctx context.Context, symbol string) (json.RawMessage, error) {
	const op = "fetch trades"

	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, archerr.DataSource(op, fmt.Errorf("symbol is required"))
	}

	requestURL := c.TradesURL(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, archerr.DataSource(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, archerr.DataSource(op, fmt.Errorf("request to %s failed: %w", requestURL, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, archerr.DataSource(op, fmt.Errorf("failed to read response body: %w", err))
	}

	c.logger.Debug("trades response received",
		"url", requestURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, archerr.DataSource(op, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, excerpt(body)))
	}

	if !json.Valid(body) {
		return nil, archerr.DataSource(op, fmt.Errorf("response is not valid JSON: %s", excerpt(body)))
	}

	return json.RawMessage(body), nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}

// Package exchange retrieves raw trade lists from an exchange REST API.
//
// The fetcher does not interpret the payload beyond checking that it is JSON: the table
// builder owns shape validation, and key order in the body must reach it untouched.
package exchange

import (
	"context"
	"encoding/json"
	"time"
)

// TradeFetcher retrieves the recent trades of one market.
//
// Implementations return the response body exactly as received. Any transport failure,
// non-success status or non-JSON body is reported as a data-source error.
type TradeFetcher interface {
	FetchTrades(ctx context.Context, symbol string) (json.RawMessage, error)
}

// ClientConfig configures a RESTClient.
type ClientConfig struct {
	BaseURL   string        // API root, e.g. https://api.mercadobitcoin.net/api/v4
	Timeout   time.Duration // whole-request timeout, zero means DefaultTimeout
	UserAgent string
}

const (
	// DefaultTimeout bounds one trades request when ClientConfig.Timeout is zero
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is sent when ClientConfig.UserAgent is empty
	DefaultUserAgent = "go-trades-archiver/1.0"

	tradesEndpoint = "/%s/trades"

	// maxErrorBody caps how much of an error response ends up in the error message
	maxErrorBody = 512
)

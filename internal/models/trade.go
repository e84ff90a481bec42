// Package models provides the trade record and run summary structures of the archiver.
// Trades are read from a built table, validated with decimal arithmetic and folded into
// a Summary that is logged, recorded in the run ledger and published with archive events.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Column names used by the exchange trades endpoint
const (
	ColumnTradeID = "tid"
	ColumnDate    = "date"
	ColumnType    = "type"
	ColumnPrice   = "price"
	ColumnAmount  = "amount"
)

// Trade sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade is one executed trade as reported by the exchange. Numeric fields keep their
// literal text so nothing is lost before decimal parsing.
type Trade struct {
	TradeID string    `json:"tid"`
	Time    time.Time `json:"date"`
	Side    string    `json:"type"`
	Price   string    `json:"price"`
	Amount  string    `json:"amount"`
}

// ValidationError represents a trade validation error with specific field context.
type ValidationError struct {
	Field   string // Field is the name of the field that failed validation
	Message string // Message is a descriptive error message explaining the validation failure
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// TradeFromRow maps a table row onto a Trade. The date column holds unix seconds.
func TradeFromRow(row map[string]string) (*Trade, error) {
	trade := &Trade{
		TradeID: row[ColumnTradeID],
		Side:    strings.ToLower(strings.TrimSpace(row[ColumnType])),
		Price:   strings.TrimSpace(row[ColumnPrice]),
		Amount:  strings.TrimSpace(row[ColumnAmount]),
	}

	if raw := strings.TrimSpace(row[ColumnDate]); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &ValidationError{Field: ColumnDate, Message: fmt.Sprintf("invalid unix timestamp %q", raw)}
		}
		trade.Time = time.Unix(secs, 0).UTC()
	}

	return trade, nil
}

// Validate checks that price is a positive decimal and amount a non-negative one.
func (t *Trade) Validate() error {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return &ValidationError{Field: ColumnPrice, Message: fmt.Sprintf("invalid price format: %v", err)}
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: ColumnPrice, Message: "price must be greater than 0"}
	}

	amount, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return &ValidationError{Field: ColumnAmount, Message: fmt.Sprintf("invalid amount format: %v", err)}
	}
	if amount.LessThan(decimal.Zero) {
		return &ValidationError{Field: ColumnAmount, Message: "amount cannot be negative"}
	}

	if t.Side != "" && t.Side != SideBuy && t.Side != SideSell {
		return &ValidationError{Field: ColumnType, Message: fmt.Sprintf("unknown trade side %q", t.Side)}
	}

	return nil
}

// PriceDecimal returns the price as a decimal. It assumes Validate succeeded.
func (t *Trade) PriceDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(t.Price)
	return d
}

// AmountDecimal returns the amount as a decimal. It assumes Validate succeeded.
func (t *Trade) AmountDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(t.Amount)
	return d
}

package models

import (
	"time"

	"github.com/johnayoung/go-trades-archiver/internal/table"
	"github.com/shopspring/decimal"
)

// Summary aggregates the trades of one archive run. Decimal values are kept as strings
// so they survive JSON and database round trips unchanged.
type Summary struct {
	Trades       int        `json:"trades"`
	Buys         int        `json:"buys"`
	Sells        int        `json:"sells"`
	Skipped      int        `json:"skipped"`
	Volume       string     `json:"volume"`
	Notional     string     `json:"notional"`
	MinPrice     string     `json:"min_price,omitempty"`
	MaxPrice     string     `json:"max_price,omitempty"`
	VWAP         string     `json:"vwap,omitempty"`
	FirstTradeAt *time.Time `json:"first_trade_at,omitempty"`
	LastTradeAt  *time.Time `json:"last_trade_at,omitempty"`
}

// vwapPlaces is the precision of the volume weighted average price
const vwapPlaces = 8

// Summarize folds every valid trade in t into a Summary. Rows that are not valid trades
// are counted as skipped; a table without price or amount columns yields a summary with
// every row skipped. Summarize never fails.
func Summarize(t *table.Table) Summary {
	summary := Summary{
		Volume:   decimal.Zero.String(),
		Notional: decimal.Zero.String(),
	}
	if t == nil {
		return summary
	}

	volume := decimal.Zero
	notional := decimal.Zero
	var minPrice, maxPrice decimal.Decimal
	var first, last time.Time

	for _, row := range t.Rows {
		trade, err := TradeFromRow(row)
		if err != nil || trade.Validate() != nil {
			summary.Skipped++
			continue
		}

		price := trade.PriceDecimal()
		amount := trade.AmountDecimal()

		if summary.Trades == 0 {
			minPrice, maxPrice = price, price
		} else {
			minPrice = decimal.Min(minPrice, price)
			maxPrice = decimal.Max(maxPrice, price)
		}
		summary.Trades++

		switch trade.Side {
		case SideBuy:
			summary.Buys++
		case SideSell:
			summary.Sells++
		}

		volume = volume.Add(amount)
		notional = notional.Add(price.Mul(amount))

		if !trade.Time.IsZero() {
			if first.IsZero() || trade.Time.Before(first) {
				first = trade.Time
			}
			if last.IsZero() || trade.Time.After(last) {
				last = trade.Time
			}
		}
	}

	summary.Volume = volume.String()
	summary.Notional = notional.String()

	if summary.Trades > 0 {
		summary.MinPrice = minPrice.String()
		summary.MaxPrice = maxPrice.String()
	}
	if volume.GreaterThan(decimal.Zero) {
		summary.VWAP = notional.DivRound(volume, vwapPlaces).String()
	}
	if !first.IsZero() {
		summary.FirstTradeAt = &first
		summary.LastTradeAt = &last
	}

	return summary
}

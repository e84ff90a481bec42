package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeFromRow(t *testing.T) {
	trade, err := TradeFromRow(map[string]string{
		ColumnTradeID: "4212",
		ColumnDate:    "1709942400",
		ColumnType:    " SELL ",
		ColumnPrice:   "190000.50",
		ColumnAmount:  "0.001",
		"extra":       "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "4212", trade.TradeID)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), trade.Time)
	assert.Equal(t, SideSell, trade.Side)
	assert.True(t, decimal.RequireFromString("190000.5").Equal(trade.PriceDecimal()))
	assert.True(t, decimal.RequireFromString("0.001").Equal(trade.AmountDecimal()))

	trade, err = TradeFromRow(map[string]string{ColumnType: "BUY", ColumnPrice: " 190000.5 ", ColumnAmount: "1"})
	require.NoError(t, err)
	assert.Equal(t, SideBuy, trade.Side)
	assert.Equal(t, "190000.5", trade.Price, "cells are trimmed")

	trade, err = TradeFromRow(map[string]string{ColumnPrice: "1", ColumnAmount: "1"})
	require.NoError(t, err)
	assert.True(t, trade.Time.IsZero(), "a missing date leaves the time unset")

	_, err = TradeFromRow(map[string]string{ColumnDate: "yesterday"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ColumnDate, verr.Field)
}

func TestTrade_Validate(t *testing.T) {
	tests := []struct {
		name      string
		trade     Trade
		wantField string
		wantMsg   string
	}{
		{"valid_buy", Trade{Side: SideBuy, Price: "100.5", Amount: "2"}, "", ""},
		{"valid_without_side", Trade{Price: "1", Amount: "0"}, "", ""},
		{"zero_price", Trade{Price: "0", Amount: "1"}, ColumnPrice, "price must be greater than 0"},
		{"negative_price", Trade{Price: "-1", Amount: "1"}, ColumnPrice, "price must be greater than 0"},
		{"bad_price", Trade{Price: "abc", Amount: "1"}, ColumnPrice, "invalid price format"},
		{"negative_amount", Trade{Price: "1", Amount: "-0.1"}, ColumnAmount, "amount cannot be negative"},
		{"missing_amount", Trade{Price: "1"}, ColumnAmount, "invalid amount format"},
		{"unknown_side", Trade{Side: "short", Price: "1", Amount: "1"}, ColumnType, "unknown trade side"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trade.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected a ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Contains(t, err.Error(), "validation error for field "+tt.wantField)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

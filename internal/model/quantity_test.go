package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatQuantity(t *testing.T) {
	testCases := []struct {
		desc     string
		qty      float64
		decimals int
		expected string
	}{
		{"exact step", 0.0004, 4, "0.0004"},
		{"truncates below step", 0.00049999, 4, "0.0004"},
		{"never rounds up", 0.00046, 4, "0.0004"},
		{"integer quantity", 12, 3, "12"},
		{"zero decimals truncates fraction", 5.987, 0, "5"},
		{"fewer digits than allowed", 1.5, 4, "1.5"},
		{"negative decimals clamp to zero", 3.21, -1, "3"},
		{"float drift stays floored", 0.1 + 0.2, 1, "0.3"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatQuantity(tc.qty, tc.decimals))
		})
	}
}

func TestFloorQuantity(t *testing.T) {
	assert.Equal(t, 0.0004, FloorQuantity(0.00049, 4))
	assert.Equal(t, 0.0, FloorQuantity(0.00009, 4))
	assert.Equal(t, 2.0, FloorQuantity(2.99, 0))
}

func TestSignalQuality(t *testing.T) {
	testCases := []struct {
		reason   string
		expected int
	}{
		{"Type A: breakout with volume", 3},
		{"Type B: momentum crossover", 2},
		{"Type C: band reversion", 1},
		{"plain discretionary entry", 0},
	}
	for _, tc := range testCases {
		sig := &Signal{Reason: tc.reason}
		assert.Equal(t, tc.expected, sig.Quality(), tc.reason)
	}
}

func TestPositionApplyFill(t *testing.T) {
	pos := &Position{Symbol: "BTCUSDT", EntryPrice: 100, Quantity: 1, MaxPrice: 100, MinPrice: 100}
	pos.ApplyFill(200, 1)

	assert.Equal(t, 150.0, pos.EntryPrice)
	assert.Equal(t, 2.0, pos.Quantity)
	assert.Equal(t, 200.0, pos.MaxPrice)
	assert.Equal(t, 100.0, pos.MinPrice)
}

package series

import (
	"testing"
	"time"

	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCandles() []models.Candle {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	rows := [][5]float64{
		{10, 12, 9, 11, 1000},
		{11, 13, 10, 12, 1500},
		{12, 12.5, 10.5, 11, 900},
	}
	candles := make([]models.Candle, len(rows))
	for i, r := range rows {
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      decimal.NewFromFloat(r[0]),
			High:      decimal.NewFromFloat(r[1]),
			Low:       decimal.NewFromFloat(r[2]),
			Close:     decimal.NewFromFloat(r[3]),
			Volume:    decimal.NewFromFloat(r[4]),
		}
	}
	return candles
}

func TestParseField(t *testing.T) {
	tests := []struct {
		in       string
		expected Field
		wantErr  bool
	}{
		{in: "", expected: FieldClose},
		{in: "close", expected: FieldClose},
		{in: " High ", expected: FieldHigh},
		{in: "OPEN", expected: FieldOpen},
		{in: "low", expected: FieldLow},
		{in: "volume", expected: FieldVolume},
		{in: "vwap", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			f, err := ParseField(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, f)
		})
	}
}

func TestFromDecimals(t *testing.T) {
	values := []decimal.Decimal{
		decimal.NewFromInt(10),
		decimal.RequireFromString("10.25"),
		decimal.NewFromFloat(-3.5),
	}

	assert.Equal(t, []float64{10, 10.25, -3.5}, FromDecimals(values))
	assert.Empty(t, FromDecimals(nil))
}

func TestToSnapshots(t *testing.T) {
	candles := sampleCandles()

	snapshots := ToSnapshots(candles)

	require.Len(t, snapshots, 3)
	assert.Equal(t, candles[1].Timestamp, snapshots[1].Date)
	assert.Equal(t, 11.0, snapshots[1].Open)
	assert.Equal(t, 13.0, snapshots[1].High)
	assert.Equal(t, 10.0, snapshots[1].Low)
	assert.Equal(t, 12.0, snapshots[1].Close)
	assert.Equal(t, 1500.0, snapshots[1].Volume)
}

func TestFromCandles(t *testing.T) {
	candles := sampleCandles()

	tests := []struct {
		field    Field
		expected []float64
	}{
		{field: FieldClose, expected: []float64{11, 12, 11}},
		{field: "", expected: []float64{11, 12, 11}},
		{field: FieldOpen, expected: []float64{10, 11, 12}},
		{field: FieldHigh, expected: []float64{12, 13, 12.5}},
		{field: FieldLow, expected: []float64{9, 10, 10.5}},
		{field: FieldVolume, expected: []float64{1000, 1500, 900}},
	}

	for _, tc := range tests {
		t.Run(string(tc.field), func(t *testing.T) {
			values, err := FromCandles(candles, tc.field)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, values)
		})
	}
}

func TestFromCandles_Errors(t *testing.T) {
	_, err := FromCandles(sampleCandles(), Field("typical"))
	assert.Error(t, err)

	values, err := FromCandles(nil, FieldClose)
	require.NoError(t, err)
	assert.Empty(t, values)
}

// Package series turns caller-supplied market data into the float series
// the pattern matcher searches.
package series

import (
	"fmt"
	"strings"

	"github.com/cinar/indicator/v2/asset"
	"github.com/cinar/indicator/v2/helper"
	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/shopspring/decimal"
)

// Field selects which price of a candle is searched.
type Field string

const (
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldClose  Field = "close"
	FieldVolume Field = "volume"
)

// DefaultField is searched when the caller does not choose one.
const DefaultField = FieldClose

// ParseField normalises s, defaulting to close for an empty string.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return DefaultField, nil
	case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume:
		return f, nil
	default:
		return "", fmt.Errorf("unknown price field %q", s)
	}
}

// FromDecimals converts decimal observations to float64.
func FromDecimals(values []decimal.Decimal) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i], _ = v.Float64()
	}
	return out
}

// ToSnapshots converts candles into indicator snapshots.
func ToSnapshots(candles []models.Candle) []*asset.Snapshot {
	snapshots := make([]*asset.Snapshot, len(candles))

	for i, c := range candles {
		open, _ := c.Open.Float64()
		high, _ := c.High.Float64()
		low, _ := c.Low.Float64()
		close, _ := c.Close.Float64()
		volume, _ := c.Volume.Float64()

		snapshots[i] = &asset.Snapshot{
			Date:   c.Timestamp,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: volume,
		}
	}

	return snapshots
}

// FromCandles extracts field from every candle, preserving order.
func FromCandles(candles []models.Candle, field Field) ([]float64, error) {
	if field == "" {
		field = DefaultField
	}
	if _, err := ParseField(string(field)); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return []float64{}, nil
	}

	snapshots := helper.SliceToChan(ToSnapshots(candles))

	var values <-chan float64
	switch field {
	case FieldOpen:
		values = asset.SnapshotsAsOpenings(snapshots)
	case FieldHigh:
		values = asset.SnapshotsAsHighs(snapshots)
	case FieldLow:
		values = asset.SnapshotsAsLows(snapshots)
	case FieldVolume:
		values = asset.SnapshotsAsVolumes(snapshots)
	default:
		values = asset.SnapshotsAsClosings(snapshots)
	}

	return helper.ChanToSlice(values), nil
}

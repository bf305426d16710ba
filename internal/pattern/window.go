// Package pattern finds windows of a price series whose shape matches a
// reference window, scoring each candidate by clamped Pearson correlation.
package pattern

import (
	"errors"
	"fmt"
	"math"

	"github.com/irfndi/celebrum-patterns/internal/utils"
)

var (
	// ErrInvalidRange is returned when the reference window does not fit the series.
	ErrInvalidRange = errors.New("invalid reference range")
	// ErrInvalidThreshold is returned when the threshold is NaN or outside [0, 100].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")
)

const (
	// MinScore and MaxScore bound every similarity score.
	MinScore = 0.0
	MaxScore = 100.0
)

// Window is a half-open index range [Start, End) into a series.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of observations covered by the window.
func (w Window) Len() int {
	return w.End - w.Start
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d)", w.Start, w.End)
}

// ValidateBounds checks 0 <= Start < End without reference to a series.
func (w Window) ValidateBounds() error {
	if w.Start < 0 {
		return utils.WrapValidation(ErrInvalidRange, "reference", "start %d is negative", w.Start)
	}
	if w.Start >= w.End {
		return utils.WrapValidation(ErrInvalidRange, "reference", "start %d must be before end %d", w.Start, w.End)
	}
	return nil
}

// Validate checks 0 <= Start < End <= n.
func (w Window) Validate(n int) error {
	if err := w.ValidateBounds(); err != nil {
		return err
	}
	if w.End > n {
		return utils.WrapValidation(ErrInvalidRange, "reference", "end %d exceeds series length %d", w.End, n)
	}
	return nil
}

// ValidateThreshold checks that t is a finite percentage.
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < MinScore || t > MaxScore {
		return utils.WrapValidation(ErrInvalidThreshold, "threshold", "%v is outside [%v, %v]", t, MinScore, MaxScore)
	}
	return nil
}

// Match is a candidate window whose score met the threshold.
type Match struct {
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// Window returns the candidate window for a pattern of the given length.
func (m Match) Window(length int) Window {
	return Window{Start: m.Position, End: m.Position + length}
}

package pattern

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positions(matches []Match) []int {
	out := make([]int, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Position)
	}
	return out
}

// randomWalk builds a reproducible price-like series.
func randomWalk(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		price += rng.NormFloat64()
		out[i] = price
	}
	return out
}

func TestMatcher_RepeatedShape(t *testing.T) {
	series := []float64{10, 11, 12, 13, 10, 11, 12, 13, 14}
	m := NewMatcher(WithWorkers(4))

	res, err := m.Search(context.Background(), series, Query{
		Reference: Window{Start: 0, End: 4},
		Threshold: 90,
	})

	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, 6, res.Candidates)
	assert.Equal(t, 6, res.Evaluated)
	// [4,8) repeats the pattern exactly and [5,9) is the same ramp one level up.
	assert.Equal(t, []int{0, 4, 5}, positions(res.Matches))
	for _, match := range res.Matches {
		assert.Equal(t, 100.0, match.Score)
	}
}

func TestMatcher_ExcludeSelf(t *testing.T) {
	series := []float64{10, 11, 12, 13, 10, 11, 12, 13, 14}
	m := NewMatcher(WithWorkers(2))

	res, err := m.Search(context.Background(), series, Query{
		Reference:   Window{Start: 0, End: 4},
		Threshold:   90,
		ExcludeSelf: true,
	})

	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, positions(res.Matches))
}

func TestMatcher_ThresholdHundredOnlyExactShapes(t *testing.T) {
	series := []float64{1, 3, 2, 5, 4, 6, 2}
	m := NewMatcher(WithWorkers(3))
	q := Query{Reference: Window{Start: 0, End: 3}, Threshold: 100}

	res, err := m.Search(context.Background(), series, q)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, positions(res.Matches), "only the reference itself is exact")

	q.ExcludeSelf = true
	res, err = m.Search(context.Background(), series, q)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestMatcher_OppositeSlopeNoMatches(t *testing.T) {
	// Falling reference against a strictly rising series: every candidate is
	// perfectly anti-correlated and clamps to 0.
	series := []float64{20, 19, 18, 17, 30, 31, 32, 33, 34}
	m := NewMatcher()

	res, err := m.Search(context.Background(), series, Query{
		Reference:   Window{Start: 0, End: 4},
		Threshold:   90,
		ExcludeSelf: true,
	})

	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestMatcher_PatternSpansWholeSeries(t *testing.T) {
	series := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5}
	m := NewMatcher()

	res, err := m.Search(context.Background(), series, Query{
		Reference: Window{Start: 0, End: len(series)},
		Threshold: 0,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Workers)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, Match{Position: 0, Score: 100}, res.Matches[0])
}

func TestMatcher_RangeErrors(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	m := NewMatcher()

	_, err := m.Search(context.Background(), series, Query{Reference: Window{Start: 5, End: 9}, Threshold: 90})
	assert.NoError(t, err, "end equal to series length is valid")

	tests := []Window{
		{Start: 5, End: 10},
		{Start: 2, End: 1},
		{Start: 3, End: 3},
		{Start: -1, End: 2},
	}
	for _, w := range tests {
		res, err := m.Search(context.Background(), series, Query{Reference: w, Threshold: 90})
		assert.ErrorIs(t, err, ErrInvalidRange, "window %s", w)
		assert.Nil(t, res)
	}
}

func TestMatcher_ThresholdErrors(t *testing.T) {
	series := []float64{1, 2, 3, 4}
	m := NewMatcher()

	for _, threshold := range []float64{-1, 100.5, math.NaN()} {
		res, err := m.Search(context.Background(), series, Query{Reference: Window{Start: 0, End: 2}, Threshold: threshold})
		assert.ErrorIs(t, err, ErrInvalidThreshold)
		assert.Nil(t, res)
	}
}

func TestMatcher_EmptySeries(t *testing.T) {
	m := NewMatcher()

	res, err := m.Search(context.Background(), nil, Query{Reference: Window{Start: 0, End: 4}, Threshold: 80})

	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Empty(t, res.Matches)
	assert.Equal(t, 0, res.Candidates)
}

func TestMatcher_EmptySeriesStillChecksBounds(t *testing.T) {
	m := NewMatcher()

	for _, w := range []Window{{Start: 2, End: 1}, {Start: -5, End: -3}, {Start: 3, End: 3}} {
		res, err := m.Search(context.Background(), nil, Query{Reference: w, Threshold: 90})
		assert.ErrorIs(t, err, ErrInvalidRange, "window %s", w)
		assert.Nil(t, res)
	}

	res, err := m.Search(context.Background(), []float64{}, Query{Reference: Window{Start: 0, End: 50}, Threshold: 90})
	require.NoError(t, err, "end past an empty series is not an error")
	assert.True(t, res.Complete)
}

func TestMatcher_FlatSeriesWithInexactMean(t *testing.T) {
	series := []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	m := NewMatcher(WithWorkers(2))

	res, err := m.Search(context.Background(), series, Query{Reference: Window{Start: 0, End: 3}, Threshold: 90})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)

	res, err = m.Search(context.Background(), series, Query{Reference: Window{Start: 0, End: 3}, Threshold: 0})
	require.NoError(t, err)
	require.Len(t, res.Matches, 4)
	for _, match := range res.Matches {
		assert.Equal(t, 0.0, match.Score)
	}

	// A flat candidate against a varying reference also scores 0.
	mixed := []float64{1, 2, 3, 0.7, 0.7, 0.7}
	res, err = m.Search(context.Background(), mixed, Query{Reference: Window{Start: 0, End: 3}, Threshold: 50})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, positions(res.Matches))
}

func TestMatcher_ZeroVarianceScoresZero(t *testing.T) {
	series := []float64{5, 5, 5, 5, 1, 2, 3, 4}
	m := NewMatcher(WithWorkers(2))

	res, err := m.Search(context.Background(), series, Query{Reference: Window{Start: 0, End: 4}, Threshold: 0.001})
	require.NoError(t, err)
	assert.Empty(t, res.Matches, "a flat reference never matches")

	res, err = m.Search(context.Background(), series, Query{Reference: Window{Start: 4, End: 8}, Threshold: 0})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 5, "threshold 0 admits every candidate")
	assert.Equal(t, 0.0, res.Matches[0].Score)
}

func TestMatcher_Deterministic(t *testing.T) {
	series := randomWalk(5000, 42)
	q := Query{Reference: Window{Start: 1200, End: 1260}, Threshold: 60}

	first, err := NewMatcher(WithWorkers(1)).Search(context.Background(), series, q)
	require.NoError(t, err)
	second, err := NewMatcher(WithWorkers(8), WithBatchSize(7)).Search(context.Background(), series, q)
	require.NoError(t, err)
	third, err := NewMatcher(WithWorkers(8), WithBatchSize(7)).Search(context.Background(), series, q)
	require.NoError(t, err)

	assert.NotEmpty(t, first.Matches)
	assert.Equal(t, first.Matches, second.Matches)
	assert.Equal(t, second.Matches, third.Matches)
}

func TestMatcher_Postconditions(t *testing.T) {
	series := randomWalk(2000, 7)
	q := Query{Reference: Window{Start: 300, End: 400}, Threshold: 75}

	res, err := NewMatcher(WithWorkers(5)).Search(context.Background(), series, q)
	require.NoError(t, err)

	length := q.Reference.Len()
	for i, match := range res.Matches {
		assert.GreaterOrEqual(t, match.Score, q.Threshold)
		assert.LessOrEqual(t, match.Score, MaxScore)
		assert.GreaterOrEqual(t, match.Position, 0)
		assert.LessOrEqual(t, match.Position, len(series)-length)
		if i > 0 {
			assert.Less(t, res.Matches[i-1].Position, match.Position)
		}
	}
}

func TestMatcher_AgreesWithBruteForce(t *testing.T) {
	series := randomWalk(800, 99)
	q := Query{Reference: Window{Start: 50, End: 90}, Threshold: 70}
	pattern := series[q.Reference.Start:q.Reference.End]

	res, err := NewMatcher(WithWorkers(6)).Search(context.Background(), series, q)
	require.NoError(t, err)

	found := make(map[int]float64, len(res.Matches))
	for _, m := range res.Matches {
		found[m.Position] = m.Score
	}
	for i := range Candidates(len(series), len(pattern)) {
		expected := Similarity(pattern, series[i:i+len(pattern)])
		score, ok := found[i]
		switch {
		case ok:
			assert.InDelta(t, expected, score, 1e-9)
		case expected >= q.Threshold+1e-9:
			t.Errorf("position %d scored %v but was not reported", i, expected)
		}
	}
}

func TestMatcher_CancelledBeforeStart(t *testing.T) {
	series := randomWalk(1000, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewMatcher(WithWorkers(4)).Search(ctx, series, Query{Reference: Window{Start: 0, End: 20}, Threshold: 0})

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.False(t, res.Complete)
	assert.Equal(t, 0, res.Evaluated)
	assert.Empty(t, res.Matches)
}

func TestMatcher_CancelCausePropagates(t *testing.T) {
	errNewer := errors.New("newer search started")
	series := randomWalk(1000, 2)
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errNewer)

	res, err := NewMatcher().Search(ctx, series, Query{Reference: Window{Start: 0, End: 20}, Threshold: 50})

	assert.ErrorIs(t, err, errNewer)
	require.NotNil(t, res)
	assert.False(t, res.Complete)
}

func TestMatcher_DeadlineExceeded(t *testing.T) {
	series := randomWalk(1000, 3)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	res, err := NewMatcher().Search(ctx, series, Query{Reference: Window{Start: 0, End: 20}, Threshold: 50})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)
	assert.LessOrEqual(t, res.Evaluated, res.Candidates)
}

// stopAfterChecks reports cancellation once Err has been called more than
// allowed times.
type stopAfterChecks struct {
	context.Context
	remaining atomic.Int64
}

func newStopAfterChecks(allowed int64) *stopAfterChecks {
	c := &stopAfterChecks{Context: context.Background()}
	c.remaining.Store(allowed)
	return c
}

func (c *stopAfterChecks) Err() error {
	if c.remaining.Add(-1) < 0 {
		return context.Canceled
	}
	return nil
}

func TestMatcher_CancelledMidSearchKeepsFoundMatches(t *testing.T) {
	series := randomWalk(1000, 4)
	q := Query{Reference: Window{Start: 0, End: 20}, Threshold: 0}
	ctx := newStopAfterChecks(50)

	res, err := NewMatcher(WithWorkers(1), WithBatchSize(1)).Search(ctx, series, q)

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.False(t, res.Complete)
	assert.Equal(t, 50, res.Evaluated)
	assert.Equal(t, 981, res.Candidates)
	require.Len(t, res.Matches, 50)
	for i, match := range res.Matches {
		assert.Equal(t, i, match.Position)
		assert.GreaterOrEqual(t, match.Score, q.Threshold)
	}
}

func TestMatcher_CancelledWhileWorkersRun(t *testing.T) {
	series := randomWalk(2_000_000, 8)
	q := Query{Reference: Window{Start: 1000, End: 1200}, Threshold: 10}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(10*time.Millisecond, cancel)

	res, err := NewMatcher(WithWorkers(4), WithBatchSize(1)).Search(ctx, series, q)

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.False(t, res.Complete)
	assert.Greater(t, res.Evaluated, 0)
	assert.Less(t, res.Evaluated, res.Candidates)
	for i, match := range res.Matches {
		assert.GreaterOrEqual(t, match.Score, q.Threshold)
		if i > 0 {
			assert.Less(t, res.Matches[i-1].Position, match.Position)
		}
	}
}

func TestNewMatcher_Options(t *testing.T) {
	m := NewMatcher(WithWorkers(3), WithBatchSize(10), WithLogger(nil))
	assert.Equal(t, 3, m.Workers())
	assert.Equal(t, 10, m.batchSize)
	assert.NotNil(t, m.logger)

	d := NewMatcher(WithWorkers(0), WithBatchSize(-1))
	assert.Equal(t, DefaultWorkers(context.Background()), d.Workers())
	assert.Equal(t, defaultBatchSize, d.batchSize)
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(context.Background()), 1)
}

func BenchmarkMatcher_Search(b *testing.B) {
	series := randomWalk(20000, 11)
	m := NewMatcher()
	q := Query{Reference: Window{Start: 5000, End: 5100}, Threshold: 80}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Search(context.Background(), series, q); err != nil {
			b.Fatalf("search failed: %v", err)
		}
	}
}

func BenchmarkSimilarity(b *testing.B) {
	series := randomWalk(200, 5)
	x, y := series[:100], series[100:]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Similarity(x, y)
	}
}

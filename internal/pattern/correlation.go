package pattern

import "math"

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := float64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	if math.IsInf(sum, 0) {
		sum = 0
		for _, v := range values {
			sum += v / n
		}
		return sum
	}
	return sum / n
}

// spread returns the mean of values and the largest absolute deviation from
// it. ok is false when the values are all equal or not finite.
func spread(values []float64) (m, scale float64, ok bool) {
	if len(values) < 2 {
		return 0, 0, false
	}
	first := values[0]
	constant := true
	for _, v := range values[1:] {
		if v != first {
			constant = false
			break
		}
	}
	if constant {
		return 0, 0, false
	}

	m = mean(values)
	for _, v := range values {
		if d := math.Abs(v - m); d > scale {
			scale = d
		}
	}
	if scale == 0 || math.IsInf(scale, 0) || math.IsNaN(m) {
		return 0, 0, false
	}
	return m, scale, true
}

// Correlation returns the Pearson correlation coefficient of x and y.
// Undefined cases (length mismatch, fewer than two points, zero variance,
// non-finite input) yield 0.
func Correlation(x []float64, y []float64) float64 {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0
	}
	meanX, scaleX, okX := spread(x)
	meanY, scaleY, okY := spread(y)
	if !okX || !okY {
		return 0
	}

	var numerator float64
	var denomX float64
	var denomY float64

	// Deviations are normalised to [-1, 1] so the sums stay representable
	// at any magnitude.
	for i := 0; i < n; i++ {
		dx := (x[i] - meanX) / scaleX
		dy := (y[i] - meanY) / scaleY
		numerator += dx * dy
		denomX += dx * dx
		denomY += dy * dy
	}

	return boundedRatio(numerator, math.Sqrt(denomX*denomY))
}

// Similarity converts the correlation of a and b into a percentage score.
// Anti-correlated shapes score 0 rather than a negative value.
func Similarity(a []float64, b []float64) float64 {
	return scoreFromCorrelation(Correlation(a, b))
}

func scoreFromCorrelation(r float64) float64 {
	score := r * 100
	if math.IsNaN(score) || score <= MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

func boundedRatio(numerator, denom float64) float64 {
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0
	}
	corr := numerator / denom
	if math.IsNaN(corr) {
		return 0
	}
	if corr > 1 {
		return 1
	}
	if corr < -1 {
		return -1
	}
	return corr
}

// reference holds the normalised reference deviations so each candidate
// costs two passes.
type reference struct {
	dev   []float64
	sumSq float64
	ok    bool
}

func newReference(values []float64) *reference {
	ref := &reference{}
	m, scale, ok := spread(values)
	if !ok {
		return ref
	}
	ref.ok = true
	ref.dev = make([]float64, len(values))
	for i, v := range values {
		d := (v - m) / scale
		ref.dev[i] = d
		ref.sumSq += d * d
	}
	return ref
}

// score returns the similarity of candidate against the reference pattern.
func (r *reference) score(candidate []float64) float64 {
	if !r.ok || len(candidate) != len(r.dev) {
		return 0
	}
	m, scale, ok := spread(candidate)
	if !ok {
		return 0
	}
	var numerator, sumSq float64
	for i, v := range candidate {
		d := (v - m) / scale
		numerator += r.dev[i] * d
		sumSq += d * d
	}
	return scoreFromCorrelation(boundedRatio(numerator, math.Sqrt(r.sumSq*sumSq)))
}

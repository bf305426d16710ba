package pattern

import "iter"

// Candidates yields every valid start position for a window of length in a
// series of n observations, in ascending order.
func Candidates(n, length int) iter.Seq[int] {
	return func(yield func(int) bool) {
		if length <= 0 {
			return
		}
		for i := 0; i <= n-length; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// CandidateCount returns how many positions Candidates yields.
func CandidateCount(n, length int) int {
	if length <= 0 || n < length {
		return 0
	}
	return n - length + 1
}

// Span is a half-open range [From, To) of candidate start positions.
type Span struct {
	From int
	To   int
}

// Len returns the number of positions in the span.
func (s Span) Len() int {
	return s.To - s.From
}

// Positions yields the start positions covered by the span.
func (s Span) Positions() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := s.From; i < s.To; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// Partition splits the candidate positions into at most parts contiguous,
// ordered spans whose sizes differ by at most one.
func Partition(n, length, parts int) []Span {
	total := CandidateCount(n, length)
	if total == 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > total {
		parts = total
	}

	spans := make([]Span, 0, parts)
	size, extra := total/parts, total%parts
	from := 0
	for p := 0; p < parts; p++ {
		to := from + size
		if p < extra {
			to++
		}
		spans = append(spans, Span{From: from, To: to})
		from = to
	}
	return spans
}

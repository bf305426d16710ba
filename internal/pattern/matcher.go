package pattern

import (
	"context"
	"iter"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultBatchSize = 64

// Query describes one search: the reference window, the minimum score, and
// whether the reference's own position is reported.
type Query struct {
	Reference   Window
	Threshold   float64
	ExcludeSelf bool
}

// Result is the outcome of a search. When Complete is false the search was
// cancelled and Matches holds only what the workers had found by then.
type Result struct {
	Matches    []Match       `json:"matches"`
	Candidates int           `json:"candidates"`
	Evaluated  int           `json:"evaluated"`
	Workers    int           `json:"workers"`
	Complete   bool          `json:"complete"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Matcher runs similarity searches across a bounded worker pool.
type Matcher struct {
	workers   int
	batchSize int
	logger    *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithWorkers caps the worker pool. Values below one keep the default.
func WithWorkers(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithBatchSize sets how many candidates a worker scores between
// cancellation checks.
func WithBatchSize(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMatcher creates a matcher with one worker per logical core.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		workers:   DefaultWorkers(context.Background()),
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Workers returns the configured pool size.
func (m *Matcher) Workers() int {
	return m.workers
}

// Search scores every candidate window of series against q.Reference and
// returns those scoring at least q.Threshold, sorted by position.
//
// Invalid thresholds and ranges are rejected before any work starts. An
// empty series yields an empty, complete result for any well-formed range. If ctx is cancelled the
// workers stop at their next batch boundary and Search returns the partial
// result together with the context error.
func (m *Matcher) Search(ctx context.Context, series []float64, q Query) (*Result, error) {
	start := time.Now()

	if err := ValidateThreshold(q.Threshold); err != nil {
		return nil, err
	}
	if err := q.Reference.ValidateBounds(); err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return &Result{Matches: []Match{}, Complete: true, Elapsed: time.Since(start)}, nil
	}
	if err := q.Reference.Validate(len(series)); err != nil {
		return nil, err
	}

	length := q.Reference.Len()
	ref := newReference(series[q.Reference.Start:q.Reference.End])
	spans := Partition(len(series), length, m.workers)

	found := make([][]Match, len(spans))
	evaluated := make([]int, len(spans))

	var waitErr error
	if len(spans) == 1 {
		// A single worker scans inline.
		found[0], evaluated[0], waitErr = m.scan(ctx, series, ref, q, Candidates(len(series), length))
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for w, span := range spans {
			g.Go(func() error {
				var err error
				found[w], evaluated[w], err = m.scan(gctx, series, ref, q, span.Positions())
				return err
			})
		}
		waitErr = g.Wait()
	}

	res := &Result{
		Matches:    merge(found),
		Candidates: CandidateCount(len(series), length),
		Workers:    len(spans),
		Elapsed:    time.Since(start),
	}
	for _, n := range evaluated {
		res.Evaluated += n
	}

	if waitErr != nil {
		if cause := context.Cause(ctx); cause != nil {
			waitErr = cause
		}
		m.logger.Debug("pattern search cancelled",
			"reference", q.Reference.String(),
			"evaluated", res.Evaluated,
			"candidates", res.Candidates,
			"matches", len(res.Matches),
		)
		return res, waitErr
	}

	res.Complete = true
	m.logger.Debug("pattern search finished",
		"reference", q.Reference.String(),
		"threshold", q.Threshold,
		"candidates", res.Candidates,
		"matches", len(res.Matches),
		"workers", res.Workers,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

// scan scores the windows starting at each position from positions and
// checks ctx every batchSize candidates. It returns what it found before
// stopping and how many positions it consumed.
func (m *Matcher) scan(ctx context.Context, series []float64, ref *reference, q Query, positions iter.Seq[int]) ([]Match, int, error) {
	length := q.Reference.Len()
	var local []Match
	n := 0
	for i := range positions {
		if n%m.batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return local, n, err
			}
		}
		n++
		if q.ExcludeSelf && i == q.Reference.Start {
			continue
		}
		score := ref.score(series[i : i+length])
		if score >= q.Threshold {
			local = append(local, Match{Position: i, Score: score})
		}
	}
	return local, n, nil
}

// merge concatenates the per-worker buffers in position order.
func merge(buffers [][]Match) []Match {
	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	out := make([]Match, 0, total)
	for _, b := range buffers {
		out = append(out, b...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

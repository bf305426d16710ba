package services

import (
	"context"
	"errors"
	"time"

	"github.com/irfndi/celebrum-patterns/internal/config"
	"github.com/irfndi/celebrum-patterns/internal/logging"
	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/pattern"
	"github.com/irfndi/celebrum-patterns/internal/series"
	"github.com/irfndi/celebrum-patterns/internal/telemetry"
	"github.com/irfndi/celebrum-patterns/internal/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrSeriesTooLong is returned when a series exceeds matcher.max_series_length.
	ErrSeriesTooLong = errors.New("series too long")
	// ErrInvalidSeries is returned when a request carries no usable series.
	ErrInvalidSeries = errors.New("invalid series")
	// ErrSessionsUnavailable is returned by selection operations when no
	// session store is configured.
	ErrSessionsUnavailable = errors.New("session store unavailable")
)

// SessionStore persists operator selections per session.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*models.Selection, bool, error)
	Set(ctx context.Context, sel models.Selection) error
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// SearchInput is a search with optional fields still unresolved. Nil
// pointers fall back to the session selection and then to configuration.
type SearchInput struct {
	SessionID   string
	Series      []float64
	Timestamps  []time.Time
	Reference   *pattern.Window
	Threshold   *float64
	ExcludeSelf *bool
}

// SearchOutput is a finished or timed-out search.
type SearchOutput struct {
	SearchID   string
	SessionID  string
	Query      pattern.Query
	Result     *pattern.Result
	Timestamps []time.Time
}

// PatternService resolves search parameters and runs the matcher.
type PatternService struct {
	config      config.MatcherConfig
	matcher     *pattern.Matcher
	sessions    SessionStore
	coordinator *SearchCoordinator
	logger      logging.Logger
}

// NewPatternService wires the service. A nil matcher is built from cfg; a
// nil sessions store disables session fallback.
func NewPatternService(cfg config.MatcherConfig, matcher *pattern.Matcher, sessions SessionStore, coordinator *SearchCoordinator, logger logging.Logger) *PatternService {
	if logger == nil {
		logger = logging.NewStandardLogger("info", "")
	}
	if coordinator == nil {
		coordinator = NewSearchCoordinator(nil)
	}
	if matcher == nil {
		matcher = pattern.NewMatcher(
			pattern.WithWorkers(cfg.Workers),
			pattern.WithBatchSize(cfg.BatchSize),
			pattern.WithLogger(logger.WithComponent("matcher")),
		)
	}
	return &PatternService{
		config:      cfg,
		matcher:     matcher,
		sessions:    sessions,
		coordinator: coordinator,
		logger:      logger,
	}
}

// Coordinator returns the coordinator tracking this service's searches.
func (s *PatternService) Coordinator() *SearchCoordinator {
	return s.coordinator
}

// InputFromRequest converts a wire request into a SearchInput.
func InputFromRequest(req *models.SearchRequest) (SearchInput, error) {
	in := SearchInput{SessionID: req.SessionID}

	switch {
	case len(req.Values) > 0 && len(req.Candles) > 0:
		return in, utils.WrapValidation(ErrInvalidSeries, "series", "provide either values or candles, not both")
	case len(req.Candles) > 0:
		field, err := series.ParseField(req.Field)
		if err != nil {
			return in, utils.WrapValidation(ErrInvalidSeries, "field", "%s", err.Error())
		}
		values, err := series.FromCandles(req.Candles, field)
		if err != nil {
			return in, utils.WrapValidation(ErrInvalidSeries, "candles", "%s", err.Error())
		}
		in.Series = values
		in.Timestamps = make([]time.Time, len(req.Candles))
		for i, c := range req.Candles {
			in.Timestamps[i] = c.Timestamp
		}
	default:
		in.Series = series.FromDecimals(req.Values)
	}

	if req.Reference != nil {
		in.Reference = &pattern.Window{Start: req.Reference.Start, End: req.Reference.End}
	}
	if req.Threshold != nil {
		t := req.Threshold.InexactFloat64()
		in.Threshold = &t
	}
	if req.ExcludeSelf != nil {
		v := *req.ExcludeSelf
		in.ExcludeSelf = &v
	}
	return in, nil
}

// Search resolves in and runs the matcher. A search that hits the
// configured timeout returns its partial result with a nil error; a search
// superseded or cancelled through the coordinator returns no result.
func (s *PatternService) Search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	start := time.Now()

	n := len(in.Series)
	if s.config.MaxSeriesLength > 0 && n > s.config.MaxSeriesLength {
		return nil, utils.WrapValidation(ErrSeriesTooLong, "series", "length %d exceeds the maximum of %d", n, s.config.MaxSeriesLength)
	}
	if len(in.Timestamps) != n {
		in.Timestamps = nil
	}

	query, err := s.resolveQuery(ctx, in)
	if err != nil {
		return nil, err
	}

	handle := s.coordinator.Begin(ctx, in.SessionID)
	defer s.coordinator.Finish(handle)

	searchCtx := handle.Ctx
	if timeout := s.config.SearchTimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(searchCtx, timeout)
		defer cancel()
	}

	searchCtx, span := telemetry.StartSpan(searchCtx, telemetry.GetSearchTracer(), "pattern.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.id", handle.SearchID),
		attribute.String("session.id", in.SessionID),
		attribute.Int("series.length", n),
		attribute.Int("reference.start", query.Reference.Start),
		attribute.Int("reference.end", query.Reference.End),
		attribute.Float64("threshold", query.Threshold),
	)

	res, err := s.matcher.Search(searchCtx, in.Series, query)

	event := logging.SearchEvent{
		SearchID:  handle.SearchID,
		SessionID: in.SessionID,
		Reference: query.Reference.String(),
		Threshold: query.Threshold,
		Err:       err,
	}
	if res != nil {
		event.Candidates = res.Candidates
		event.Evaluated = res.Evaluated
		event.Matches = len(res.Matches)
		event.Workers = res.Workers
		event.Complete = res.Complete
		span.SetAttributes(
			attribute.Int("search.candidates", res.Candidates),
			attribute.Int("search.evaluated", res.Evaluated),
			attribute.Int("search.matches", len(res.Matches)),
			attribute.Bool("search.complete", res.Complete),
		)
	}
	event.Duration = time.Since(start)
	s.logger.LogSearch(event)

	if err != nil {
		telemetry.RecordError(span, err)
		// Only our own deadline yields a partial result; the caller's
		// deadline or cancellation is returned as an error.
		if res == nil || !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, err
		}
	}

	return &SearchOutput{
		SearchID:   handle.SearchID,
		SessionID:  in.SessionID,
		Query:      query,
		Result:     res,
		Timestamps: in.Timestamps,
	}, nil
}

// resolveQuery fills the unset parts of in from the session selection and
// then from configuration, and enforces the configured minimum threshold.
func (s *PatternService) resolveQuery(ctx context.Context, in SearchInput) (pattern.Query, error) {
	q := pattern.Query{
		Reference:   s.defaultWindow(len(in.Series)),
		Threshold:   s.config.DefaultThreshold,
		ExcludeSelf: s.config.ExcludeSelf,
	}

	needsSession := in.Reference == nil || in.Threshold == nil || in.ExcludeSelf == nil
	if in.SessionID != "" && s.sessions != nil && needsSession {
		sel, found, err := s.sessions.Get(ctx, in.SessionID)
		switch {
		case err != nil:
			s.logger.WithSession(in.SessionID).Warn("Session lookup failed, using defaults", "error", err.Error())
		case found:
			q.Reference = pattern.Window{Start: sel.ReferenceStart, End: sel.ReferenceEnd}
			q.Threshold = sel.Threshold.InexactFloat64()
			q.ExcludeSelf = sel.ExcludeSelf
		}
	}

	if in.Reference != nil {
		q.Reference = *in.Reference
	}
	if in.Threshold != nil {
		q.Threshold = *in.Threshold
	}
	if in.ExcludeSelf != nil {
		q.ExcludeSelf = *in.ExcludeSelf
	}

	if err := s.checkThreshold(q.Threshold); err != nil {
		return q, err
	}
	return q, nil
}

func (s *PatternService) checkThreshold(t float64) error {
	if err := pattern.ValidateThreshold(t); err != nil {
		return err
	}
	if t < s.config.MinThreshold {
		return utils.WrapValidation(pattern.ErrInvalidThreshold, "threshold", "%v is below the minimum of %v", t, s.config.MinThreshold)
	}
	return nil
}

// defaultWindow is the trailing window_size observations of an n-long series.
func (s *PatternService) defaultWindow(n int) pattern.Window {
	size := s.config.WindowSize
	if size <= 0 || size > n {
		size = n
	}
	return pattern.Window{Start: n - size, End: n}
}

// Selection returns the stored selection for sessionID.
func (s *PatternService) Selection(ctx context.Context, sessionID string) (*models.Selection, bool, error) {
	if s.sessions == nil {
		return nil, false, ErrSessionsUnavailable
	}
	return s.sessions.Get(ctx, sessionID)
}

// SaveSelection validates req and stores it as the selection of sessionID.
// The reference end is checked against a series only when a search runs.
func (s *PatternService) SaveSelection(ctx context.Context, sessionID string, req models.SelectionRequest) (*models.Selection, error) {
	if s.sessions == nil {
		return nil, ErrSessionsUnavailable
	}
	if sessionID == "" {
		return nil, utils.NewValidationError("session id is required")
	}

	ref := pattern.Window{Start: req.Reference.Start, End: req.Reference.End}
	if err := ref.ValidateBounds(); err != nil {
		return nil, err
	}
	if s.config.MaxSeriesLength > 0 && ref.End > s.config.MaxSeriesLength {
		return nil, utils.WrapValidation(pattern.ErrInvalidRange, "reference", "end %d exceeds the maximum series length %d", ref.End, s.config.MaxSeriesLength)
	}

	threshold := decimal.NewFromFloat(s.config.DefaultThreshold)
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if err := s.checkThreshold(threshold.InexactFloat64()); err != nil {
		return nil, err
	}

	sel := models.Selection{
		SessionID:      sessionID,
		ReferenceStart: ref.Start,
		ReferenceEnd:   ref.End,
		Threshold:      threshold,
		ExcludeSelf:    req.ExcludeSelf,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.sessions.Set(ctx, sel); err != nil {
		return nil, err
	}
	s.logger.WithOperation("save_selection").Debug("Selection saved",
		"session_id", sessionID,
		"reference", ref.String(),
		"threshold", threshold.String(),
	)
	return &sel, nil
}

// ClearSelection removes the selection of sessionID and cancels its
// in-flight search, if any.
func (s *PatternService) ClearSelection(ctx context.Context, sessionID string) (bool, error) {
	if s.sessions == nil {
		return false, ErrSessionsUnavailable
	}
	if s.coordinator.Cancel(sessionID) {
		s.logger.WithOperation("clear_selection").Info("Cancelled in-flight search", "session_id", sessionID)
	}
	return s.sessions.Delete(ctx, sessionID)
}

// CancelSearch stops the in-flight search of sessionID.
func (s *PatternService) CancelSearch(sessionID string) bool {
	return s.coordinator.Cancel(sessionID)
}

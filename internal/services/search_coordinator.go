package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSearchSuperseded is the cancellation cause of a search replaced by a
	// newer search for the same session.
	ErrSearchSuperseded = errors.New("search superseded by a newer search")
	// ErrSearchCancelled is the cancellation cause of a search stopped on request.
	ErrSearchCancelled = errors.New("search cancelled")
	// ErrShuttingDown is the cancellation cause used by CancelAll during shutdown.
	ErrShuttingDown = errors.New("server shutting down")
)

// SearchHandle tracks one in-flight search.
type SearchHandle struct {
	Ctx       context.Context
	SearchID  string
	SessionID string
	StartTime time.Time
	cancel    context.CancelCauseFunc
}

// SearchCoordinator keeps at most one in-flight search per session. Starting
// a search cancels the previous one for the same session.
type SearchCoordinator struct {
	logger    *logrus.Logger
	active    map[string]*SearchHandle
	bySession map[string]*SearchHandle
	mu        sync.Mutex
}

// NewSearchCoordinator creates a coordinator with no active searches.
func NewSearchCoordinator(logger *logrus.Logger) *SearchCoordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SearchCoordinator{
		logger:    logger,
		active:    make(map[string]*SearchHandle),
		bySession: make(map[string]*SearchHandle),
	}
}

// Begin registers a new search derived from parent. An empty sessionID
// registers an anonymous search that never supersedes another.
func (sc *SearchCoordinator) Begin(parent context.Context, sessionID string) *SearchHandle {
	ctx, cancel := context.WithCancelCause(parent)
	h := &SearchHandle{
		Ctx:       ctx,
		SearchID:  uuid.NewString(),
		SessionID: sessionID,
		StartTime: time.Now(),
		cancel:    cancel,
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sessionID != "" {
		if prev, ok := sc.bySession[sessionID]; ok {
			prev.cancel(ErrSearchSuperseded)
			delete(sc.active, prev.SearchID)
			sc.logger.WithFields(logrus.Fields{
				"session_id": sessionID,
				"search_id":  prev.SearchID,
				"next":       h.SearchID,
			}).Info("Search superseded")
		}
		sc.bySession[sessionID] = h
	}
	sc.active[h.SearchID] = h
	return h
}

// Finish releases h. It is safe to call more than once.
func (sc *SearchCoordinator) Finish(h *SearchHandle) {
	sc.mu.Lock()
	delete(sc.active, h.SearchID)
	if h.SessionID != "" && sc.bySession[h.SessionID] == h {
		delete(sc.bySession, h.SessionID)
	}
	sc.mu.Unlock()

	h.cancel(nil)
}

// Cancel stops the in-flight search of sessionID and reports whether there
// was one.
func (sc *SearchCoordinator) Cancel(sessionID string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	h, ok := sc.bySession[sessionID]
	if !ok {
		return false
	}
	h.cancel(ErrSearchCancelled)
	delete(sc.bySession, sessionID)
	delete(sc.active, h.SearchID)
	sc.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"search_id":  h.SearchID,
	}).Info("Search cancelled")
	return true
}

// CancelAll stops every in-flight search with cause ErrShuttingDown.
func (sc *SearchCoordinator) CancelAll() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	for id, h := range sc.active {
		h.cancel(ErrShuttingDown)
		sc.logger.WithField("search_id", id).Info("Search cancelled during shutdown")
	}
	sc.active = make(map[string]*SearchHandle)
	sc.bySession = make(map[string]*SearchHandle)
}

// Active returns the number of in-flight searches.
func (sc *SearchCoordinator) Active() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.active)
}

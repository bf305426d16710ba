package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/irfndi/celebrum-patterns/internal/logging"
	"github.com/irfndi/celebrum-patterns/internal/middleware"
	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/services"
	"github.com/irfndi/celebrum-patterns/internal/utils"
	"github.com/shopspring/decimal"
)

// PatternHandler serves pattern searches and session selections.
type PatternHandler struct {
	service *services.PatternService
	logger  logging.Logger
}

// NewPatternHandler creates a handler over service. A nil logger logs JSON
// to stdout.
func NewPatternHandler(service *services.PatternService, logger logging.Logger) *PatternHandler {
	if logger == nil {
		logger = logging.NewStandardLogger("info", "")
	}
	return &PatternHandler{
		service: service,
		logger:  logger,
	}
}

// Search finds windows of the posted series similar to the reference window.
func (h *PatternHandler) Search(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.SessionID == "" {
		req.SessionID = c.GetHeader(middleware.SessionHeader)
	}
	if req.SessionID != "" {
		if _, err := uuid.Parse(req.SessionID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id", "field": "session_id"})
			return
		}
	}

	in, err := services.InputFromRequest(&req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out, err := h.service.Search(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}

	middleware.AddSpanAttribute(c, "pattern.matches", len(out.Result.Matches))
	middleware.AddSpanAttribute(c, "pattern.complete", out.Result.Complete)
	c.JSON(http.StatusOK, ToSearchResponse(out))
}

// ToSearchResponse converts a service result to its wire form. Scores are
// rounded to two decimals and labelled with their whole percentage.
func ToSearchResponse(out *services.SearchOutput) models.SearchResponse {
	length := out.Query.Reference.Len()
	res := out.Result

	matches := make([]models.MatchResult, 0, len(res.Matches))
	for _, m := range res.Matches {
		mr := models.MatchResult{
			Position: m.Position,
			End:      m.Position + length,
			Score:    decimal.NewFromFloat(m.Score).Round(2),
			Label:    fmt.Sprintf("%d%%", int(m.Score)),
		}
		if len(out.Timestamps) > 0 {
			from := out.Timestamps[m.Position]
			to := out.Timestamps[mr.End-1]
			mr.From, mr.To = &from, &to
		}
		matches = append(matches, mr)
	}

	return models.SearchResponse{
		SearchID:  out.SearchID,
		SessionID: out.SessionID,
		Reference: models.WindowRequest{
			Start: out.Query.Reference.Start,
			End:   out.Query.Reference.End,
		},
		Threshold:  decimal.NewFromFloat(out.Query.Threshold),
		Matches:    matches,
		Count:      len(matches),
		Candidates: res.Candidates,
		Evaluated:  res.Evaluated,
		Workers:    res.Workers,
		Complete:   res.Complete,
		ElapsedMS:  res.Elapsed.Milliseconds(),
		Timestamp:  time.Now(),
	}
}

// writeError maps service errors to HTTP responses.
func (h *PatternHandler) writeError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	switch {
	case errors.As(err, &ve):
		body := gin.H{"error": ve.Error()}
		if ve.Field != "" {
			body["field"] = ve.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, services.ErrSearchSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": "Search superseded by a newer search"})
	case errors.Is(err, services.ErrSearchCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": "Search cancelled"})
	case errors.Is(err, services.ErrSessionsUnavailable), errors.Is(err, services.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "Request cancelled"})
	default:
		middleware.RecordError(c, err, "request failed")
		h.logger.WithError(err).Error("Request failed", "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

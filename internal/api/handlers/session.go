package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/irfndi/celebrum-patterns/internal/models"
)

// CreateSession issues a new session id. Nothing is stored until a
// selection is saved.
func (h *PatternHandler) CreateSession(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"session_id": uuid.NewString()})
}

// GetSelection returns the stored selection of a session.
func (h *PatternHandler) GetSelection(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	sel, found, err := h.service.Selection(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Selection not found"})
		return
	}
	c.JSON(http.StatusOK, sel)
}

// PutSelection replaces the selection of a session.
func (h *PatternHandler) PutSelection(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	var req models.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	sel, err := h.service.SaveSelection(c.Request.Context(), sessionID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sel)
}

// DeleteSelection clears the selection of a session and cancels its search.
func (h *PatternHandler) DeleteSelection(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	deleted, err := h.service.ClearSelection(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Selection not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelSearch stops the in-flight search of a session.
func (h *PatternHandler) CancelSearch(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	if !h.service.CancelSearch(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No search in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "cancelled": true})
}

func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id", "field": "session_id"})
		return "", false
	}
	return id, true
}

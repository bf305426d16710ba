package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WindowRequest is a half-open [Start, End) index range on the wire.
type WindowRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Selection is the operator's current search setup for a session. It is
// host-owned state threaded into each search; results are never stored.
type Selection struct {
	SessionID      string          `json:"session_id"`
	ReferenceStart int             `json:"reference_start"`
	ReferenceEnd   int             `json:"reference_end"`
	Threshold      decimal.Decimal `json:"threshold"`
	ExcludeSelf    bool            `json:"exclude_self"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SelectionRequest updates a session's selection.
type SelectionRequest struct {
	Reference   WindowRequest    `json:"reference"`
	Threshold   *decimal.Decimal `json:"threshold,omitempty"`
	ExcludeSelf bool             `json:"exclude_self"`
}

// SearchRequest asks for windows similar to a reference window. Exactly one
// of Values and Candles carries the series. Reference and Threshold fall back
// to the session's selection and then to service defaults.
type SearchRequest struct {
	SessionID   string            `json:"session_id,omitempty"`
	Values      []decimal.Decimal `json:"values,omitempty"`
	Candles     []Candle          `json:"candles,omitempty"`
	Field       string            `json:"field,omitempty"`
	Reference   *WindowRequest    `json:"reference,omitempty"`
	Threshold   *decimal.Decimal  `json:"threshold,omitempty"`
	ExcludeSelf *bool             `json:"exclude_self,omitempty"`
}

// MatchResult is one reported match.
type MatchResult struct {
	Position int             `json:"position"`
	End      int             `json:"end"`
	Score    decimal.Decimal `json:"score"`
	Label    string          `json:"label"`
	From     *time.Time      `json:"from,omitempty"`
	To       *time.Time      `json:"to,omitempty"`
}

// SearchResponse is returned by the search endpoint.
type SearchResponse struct {
	SearchID   string          `json:"search_id"`
	SessionID  string          `json:"session_id,omitempty"`
	Reference  WindowRequest   `json:"reference"`
	Threshold  decimal.Decimal `json:"threshold"`
	Matches    []MatchResult   `json:"matches"`
	Count      int             `json:"count"`
	Candidates int             `json:"candidates"`
	Evaluated  int             `json:"evaluated"`
	Workers    int             `json:"workers"`
	Complete   bool            `json:"complete"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Timestamp  time.Time       `json:"timestamp"`
}

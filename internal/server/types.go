package server

import (
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/ledger"
	"github.com/efiadm/api-categorizer-aggr/internal/router"
	"github.com/efiadm/api-categorizer-aggr/internal/transcript"
	"github.com/efiadm/api-categorizer-aggr/pkg/explorer"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string         `json:"status"`
	Ready     bool           `json:"ready"`
	Loaded    bool           `json:"loaded"`
	Source    catalog.Source `json:"source,omitempty"`
	Size      int            `json:"size"`
	Breaker   string         `json:"breaker"`
	Busy      bool           `json:"busy"`
	Timestamp time.Time      `json:"timestamp"`
}

// APIListResponse is a browse result.
type APIListResponse struct {
	APIs  []catalog.API `json:"apis"`
	Count int           `json:"count"`
	View  catalog.Mode  `json:"view"`
}

// APIResponse is a single catalog entry with its favorite flag.
type APIResponse struct {
	API      catalog.API `json:"api"`
	Favorite bool        `json:"favorite"`
	Warning  string      `json:"warning,omitempty"`
}

// CategoriesResponse is the category index.
type CategoriesResponse struct {
	Categories []catalog.CategoryCount `json:"categories"`
	Total      int                     `json:"total"`
}

// FavoriteResponse reports the state after a toggle.
type FavoriteResponse struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
	Warning  string `json:"warning,omitempty"`
}

// HistoryResponse is the view log with the entries it resolves to.
type HistoryResponse struct {
	Entries []ledger.Entry `json:"entries"`
	APIs    []catalog.API  `json:"apis"`
}

// TranscriptResponse is the chat log.
type TranscriptResponse struct {
	Messages []transcript.Message `json:"messages"`
}

// ChatRequest is the body of POST /api/chat and of chat socket frames.
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse is one answered question.
type ChatResponse struct {
	*explorer.Exchange
	Warning string `json:"warning,omitempty"`
}

// Frame types sent over the chat socket.
const (
	FramePhase   = "phase"
	FrameMessage = "message"
	FrameError   = "error"
)

// Frame is a server-to-client chat socket message.
type Frame struct {
	Type     string             `json:"type"`
	Phase    router.Phase       `json:"phase,omitempty"`
	Exchange *explorer.Exchange `json:"exchange,omitempty"`
	Error    *ErrorResponse     `json:"error,omitempty"`
	Warning  string             `json:"warning,omitempty"`
}

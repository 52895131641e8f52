package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/ledger"
	"github.com/efiadm/api-categorizer-aggr/internal/transcript"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// System endpoints
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Catalog
	mux.HandleFunc("GET /api/apis", s.handleListAPIs)
	mux.HandleFunc("GET /api/apis/{id}", s.handleGetAPI)
	mux.HandleFunc("POST /api/apis/{id}/test", s.handleTestAPI)
	mux.HandleFunc("GET /api/categories", s.handleCategories)

	// Ledger
	mux.HandleFunc("GET /api/favorites", s.handleFavorites)
	mux.HandleFunc("POST /api/favorites/{id}", s.handleToggleFavorite)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Chat
	mux.HandleFunc("GET /api/chat", s.handleTranscript)
	mux.HandleFunc("POST /api/chat", s.handleAsk)
	mux.HandleFunc("GET /ws/chat", s.handleChatSocket)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	e := s.explorer
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Ready:     s.Ready(),
		Loaded:    e.Loaded(),
		Source:    e.Source(),
		Size:      len(e.APIs()),
		Breaker:   e.BreakerState().String(),
		Busy:      e.Busy(),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleListAPIs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := catalog.ParseMode(q.Get("view"))
	if err != nil {
		writeError(w, r, errors.NewValidationError("server", err.Error()))
		return
	}

	apis := s.explorer.Search(catalog.Query{
		Text:     q.Get("q"),
		Category: q.Get("category"),
		Mode:     mode,
	})
	respondJSON(w, http.StatusOK, APIListResponse{APIs: nonNil(apis), Count: len(apis), View: mode})
}

func (s *Server) handleGetAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	api, err := s.explorer.Open(id)
	if errors.IsNotFound(err) {
		writeError(w, r, err)
		return
	}

	resp := APIResponse{API: api, Favorite: s.explorer.IsFavorite(id)}
	if err != nil {
		resp.Warning = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTestAPI(w http.ResponseWriter, r *http.Request) {
	res, err := s.explorer.TestAPI(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	counts := s.explorer.Categories()
	respondJSON(w, http.StatusOK, CategoriesResponse{
		Categories: counts,
		Total:      catalog.Total(counts),
	})
}

func (s *Server) handleFavorites(w http.ResponseWriter, _ *http.Request) {
	apis := s.explorer.Favorites()
	respondJSON(w, http.StatusOK, APIListResponse{APIs: nonNil(apis), Count: len(apis), View: catalog.ModeFavorites})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	on, err := s.explorer.ToggleFavorite(id)
	if err != nil && !errors.IsType(err, errors.Storage) {
		writeError(w, r, err)
		return
	}

	resp := FavoriteResponse{ID: id, Favorite: on}
	if err != nil {
		resp.Warning = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	entries := s.explorer.History()
	if entries == nil {
		entries = []ledger.Entry{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{
		Entries: entries,
		APIs:    nonNil(s.explorer.RecentAPIs()),
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	msgs := s.explorer.Transcript()
	if msgs == nil {
		msgs = []transcript.Message{}
	}
	respondJSON(w, http.StatusOK, TranscriptResponse{Messages: msgs})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, errors.NewValidationError("server", "invalid request body"))
		return
	}

	ex, err := s.explorer.Ask(r.Context(), req.Question, nil)
	if ex == nil {
		if err != nil {
			writeError(w, r, err)
			return
		}
		// Blank questions are ignored.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := ChatResponse{Exchange: ex}
	if err != nil {
		resp.Warning = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func nonNil(apis []catalog.API) []catalog.API {
	if apis == nil {
		return []catalog.API{}
	}
	return apis
}

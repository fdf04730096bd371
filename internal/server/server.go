// Package server exposes the readalong engine over HTTP: a JSON API for
// stories, attempts, and reader progress, plus a WebSocket endpoint that
// carries the live reading session.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/readwell/readalong/internal/align"
	"github.com/readwell/readalong/internal/attempt"
	"github.com/readwell/readalong/internal/health"
	"github.com/readwell/readalong/internal/level"
	"github.com/readwell/readalong/internal/observe"
	"github.com/readwell/readalong/internal/phonics"
	"github.com/readwell/readalong/internal/session"
	"github.com/readwell/readalong/internal/store"
	"github.com/readwell/readalong/pkg/provider/stt"
)

// Config assembles the server's collaborators and session tuning.
type Config struct {
	Store    store.Store
	Engine   *attempt.Engine
	Provider stt.Provider

	// Stream configures every provider stream the server opens.
	Stream stt.StreamConfig

	// AlignOptions tune the aligner for live sessions.
	AlignOptions []align.Option

	// Governor clamps cursor advancement. Nil gets a default governor
	// per session.
	Governor func() *session.Governor

	// Metrics records request and session telemetry. Nil uses
	// observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Session tuning, passed through to each orchestrator. Zero values use
	// the session package defaults.
	CommitInterval    time.Duration
	KeepAliveInterval time.Duration
	StuckLimit        int
	MaxReconnects     int
}

// Server routes HTTP traffic to the engine. Create with New, serve via
// [Server.Handler].
type Server struct {
	cfg     Config
	metrics *observe.Metrics
	log     *slog.Logger
	mux     *http.ServeMux
}

// New validates cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("server: attempt engine is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("server: stt provider is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	s := &Server{
		cfg:     cfg,
		metrics: cfg.Metrics,
		log:     slog.Default(),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/stories", s.handleCreateStory)
	s.mux.HandleFunc("GET /api/stories/{id}", s.handleGetStory)

	s.mux.HandleFunc("POST /api/attempts/start", s.handleStartAttempt)
	s.mux.HandleFunc("POST /api/attempts/{id}/finish", s.handleFinishAttempt)
	s.mux.HandleFunc("POST /api/attempts/{id}/pronounce", s.handlePronounce)
	s.mux.HandleFunc("POST /api/attempts/{id}/hint", s.handleHint)

	s.mux.HandleFunc("GET /api/readers/{id}/problem-words", s.handleProblemWords)
	s.mux.HandleFunc("GET /api/readers/{id}/level", s.handleLevel)

	s.mux.HandleFunc("GET /ws/attempts/{id}", s.handleSession)

	health.New(health.StoreChecker(s.cfg.Store)).Register(s.mux)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return observe.Middleware(s.metrics)(s.mux)
}

// ─── Stories ─────────────────────────────────────────────────────────────────

type createStoryRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Level int    `json:"level"`
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Level != 0 {
		if _, _, ok := level.WordRange(req.Level); !ok {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("level %d is out of range [%d, %d]", req.Level, level.MinLevel, level.MaxLevel))
			return
		}
	}

	story, err := s.cfg.Store.SaveStory(r.Context(), store.Story{
		Title: req.Title,
		Text:  req.Text,
		Level: req.Level,
	})
	if err != nil {
		s.storeError(w, "save story", err)
		return
	}
	writeJSON(w, http.StatusCreated, story)
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	story, err := s.cfg.Store.Story(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, "get story", err)
		return
	}
	writeJSON(w, http.StatusOK, story)
}

// ─── Attempts ────────────────────────────────────────────────────────────────

type startAttemptRequest struct {
	ReaderID string `json:"reader_id"`
	StoryID  string `json:"story_id"`
}

func (s *Server) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ReaderID == "" || req.StoryID == "" {
		writeError(w, http.StatusBadRequest, "reader_id and story_id are required")
		return
	}

	a, err := s.cfg.Engine.Start(r.Context(), req.ReaderID, req.StoryID)
	if err != nil {
		s.storeError(w, "start attempt", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type finishAttemptResponse struct {
	Attempt  store.Attempt `json:"attempt"`
	Score    any           `json:"score"`
	Decision any           `json:"decision"`
	Level    levelResponse `json:"level"`
}

func (s *Server) handleFinishAttempt(w http.ResponseWriter, r *http.Request) {
	res, err := s.cfg.Engine.Finish(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, "finish attempt", err)
		return
	}
	writeJSON(w, http.StatusOK, finishAttemptResponse{
		Attempt:  res.Attempt,
		Score:    res.Score,
		Decision: res.Decision,
		Level:    newLevelResponse(res.Level),
	})
}

// ─── Word help ───────────────────────────────────────────────────────────────

type wordRequest struct {
	Word string `json:"word"`
}

type wordHelpResponse struct {
	Word   string `json:"word"`
	Tricky bool   `json:"tricky"`
	Hint   string `json:"hint,omitempty"`
}

// handlePronounce answers "say this word for me": it returns the phonics
// hint and records a lookup against the reader's trouble words. Lookups do
// not count as interventions.
func (s *Server) handlePronounce(w http.ResponseWriter, r *http.Request) {
	var req wordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Word == "" {
		writeError(w, http.StatusBadRequest, "word is required")
		return
	}

	if err := s.cfg.Engine.RecordLookup(r.Context(), r.PathValue("id"), req.Word); err != nil {
		s.storeError(w, "record lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, wordHelpResponse{
		Word:   req.Word,
		Tricky: phonics.Tricky(req.Word),
		Hint:   phonics.Hint(req.Word),
	})
}

// handleHint is the coached variant: the reader got help getting past the
// word, so it counts as an intervention against the attempt's score.
func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	var req wordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Word == "" {
		writeError(w, http.StatusBadRequest, "word is required")
		return
	}

	if err := s.cfg.Engine.RecordHint(r.Context(), r.PathValue("id"), req.Word); err != nil {
		s.storeError(w, "record hint", err)
		return
	}
	writeJSON(w, http.StatusOK, wordHelpResponse{
		Word:   req.Word,
		Tricky: phonics.Tricky(req.Word),
		Hint:   phonics.Hint(req.Word),
	})
}

// ─── Reader progress ─────────────────────────────────────────────────────────

func (s *Server) handleProblemWords(w http.ResponseWriter, r *http.Request) {
	words, err := s.cfg.Store.ProblemWords(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, "problem words", err)
		return
	}
	if words == nil {
		words = []store.ProblemWord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"words": words})
}

type levelResponse struct {
	CurrentLevel       int       `json:"current_level"`
	Confidence         float64   `json:"confidence"`
	LastDecisionReason string    `json:"last_decision_reason,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
	MinWords           int       `json:"min_words"`
	MaxWords           int       `json:"max_words"`
}

func newLevelResponse(st level.State) levelResponse {
	low, high, _ := level.WordRange(st.CurrentLevel)
	return levelResponse{
		CurrentLevel:       st.CurrentLevel,
		Confidence:         st.Confidence,
		LastDecisionReason: st.LastDecisionReason,
		UpdatedAt:          st.UpdatedAt,
		MinWords:           low,
		MaxWords:           high,
	}
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Store.LevelState(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		st = level.State{CurrentLevel: level.MinLevel}
	} else if err != nil {
		s.storeError(w, "level state", err)
		return
	}
	writeJSON(w, http.StatusOK, newLevelResponse(st))
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeError maps storage failures to HTTP responses without leaking
// internals to the client.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.log.Error("request failed", "op", op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

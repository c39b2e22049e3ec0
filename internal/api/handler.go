package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/domain"
	"github.com/vintrastudio/support-console/internal/biz/usecase"
	"github.com/vintrastudio/support-console/internal/service"
)

// Server exposes the operator console over HTTP: conversation previews,
// focus, messaging and the handoff controls
type Server struct {
	convUC  *usecase.ConversationUsecase
	handoff *usecase.HandoffUsecase
	focus   *service.FocusManager
	view    *service.ConsoleView

	server *http.Server
	addr   string
	log    zerolog.Logger
}

// NewServer creates a new API server
func NewServer(
	convUC *usecase.ConversationUsecase,
	handoff *usecase.HandoffUsecase,
	focus *service.FocusManager,
	view *service.ConsoleView,
	addr string,
	log zerolog.Logger,
) *Server {
	return &Server{
		convUC:  convUC,
		handoff: handoff,
		focus:   focus,
		view:    view,
		addr:    addr,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := s.routes()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	s.log.Info().Str("addr", s.addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Conversation list and per-conversation operations
	mux.HandleFunc("/api/conversations", s.handleConversations)
	mux.HandleFunc("/api/conversations/", s.handleConversationItem)

	// Focus is a console-wide singleton, so unfocus has no id
	mux.HandleFunc("/api/unfocus", s.handleUnfocus)

	// Inbound messages from the chat widget and the automated-reply process
	mux.HandleFunc("/api/ingest", s.handleIngest)

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// ============ Conversation Handlers ============

type previewItem struct {
	UserID      string           `json:"user_id"`
	LastUpdated int64            `json:"last_updated"`
	LastMessage *domain.Message  `json:"last_message,omitempty"`
	Messages    []domain.Message `json:"messages"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := s.view.Previews()
	items := make([]previewItem, len(entries))
	for i, entry := range entries {
		items[i] = previewItem{
			UserID:      entry.UserID,
			LastUpdated: entry.LastUpdated.UnixMilli(),
			LastMessage: entry.LatestMessage(),
			Messages:    entry.Messages,
		}
	}

	s.writeJSON(w, map[string]interface{}{
		"conversations": items,
		"focused":       s.focus.FocusedID(),
	})
}

func (s *Server) handleConversationItem(w http.ResponseWriter, r *http.Request) {
	// Parse path: /api/conversations/{user_id}[/{action}]
	path := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	parts := strings.Split(path, "/")
	userID := parts[0]
	if userID == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleConversationGet(w, r, userID)
		case http.MethodDelete:
			s.handleConversationDelete(w, r, userID)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "messages":
		s.handleMessages(w, r, userID)
	case "focus":
		s.handleFocus(w, r, userID)
	case "takeover":
		s.handleTakeover(w, r, userID)
	case "release":
		s.handleRelease(w, r, userID)
	case "maintenance":
		s.handleMaintenance(w, r, userID)
	case "typing":
		s.handleTyping(w, r, userID)
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
	}
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request, userID string) {
	conv, err := s.convUC.Get(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if conv == nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"conversation": conv,
		"state":        conv.State(),
	})
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request, userID string) {
	// Release the live subscription pair first so the pumps never observe
	// the document vanishing mid-focus
	if s.focus.FocusedID() == userID {
		s.focus.Unfocus()
	}

	if err := s.convUC.Delete(r.Context(), userID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		messages := s.focus.Messages(userID)
		s.writeJSON(w, map[string]interface{}{
			"messages": messages,
			"live":     s.focus.FocusedID() == userID,
		})

	case http.MethodPost:
		var req struct {
			Text  string `json:"text"`
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Text == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}
		if s.focus.FocusedID() != userID {
			http.Error(w, "conversation is not focused", http.StatusConflict)
			return
		}

		msg, err := s.focus.SendMessage(r.Context(), req.Text, req.Email)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"message": msg})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.focus.Focus(r.Context(), userID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "focused": userID})
}

func (s *Server) handleUnfocus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.focus.Unfocus()
	s.writeJSON(w, map[string]interface{}{"success": true})
}

// ============ Handoff Handlers ============

func (s *Server) handleTakeover(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Admin string `json:"admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Admin == "" {
		req.Admin = "admin"
	}

	if err := s.handoff.Takeover(r.Context(), userID, req.Admin); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "state": domain.StateHumanControlled})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Admin string `json:"admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Admin == "" {
		req.Admin = "admin"
	}

	if err := s.handoff.Release(r.Context(), userID, req.Admin); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "state": domain.StateAIActive})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		WaitMinutes int    `json:"wait_minutes"`
		Admin       string `json:"admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Admin == "" {
		req.Admin = "admin"
	}

	if err := s.handoff.EnterMaintenance(r.Context(), userID, req.WaitMinutes, req.Admin); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "state": domain.StateMaintenance})
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.focus.FocusedID() != userID {
		http.Error(w, "conversation is not focused", http.StatusConflict)
		return
	}

	if err := s.focus.Keystroke(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

// ============ Ingest Handler ============

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		Sender string `json:"sender"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Text == "" {
		http.Error(w, "user_id and text are required", http.StatusBadRequest)
		return
	}

	msg, err := s.convUC.Ingest(r.Context(), req.UserID, req.Sender, req.Text)
	if err != nil {
		s.writeError(w, fmt.Errorf("ingest: %w", err))
		return
	}
	s.writeJSON(w, map[string]interface{}{"message": msg})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var partial *usecase.PartialResetError

	switch {
	case errors.Is(err, usecase.ErrNotTakenOver),
		errors.Is(err, service.ErrNoFocus),
		errors.Is(err, service.ErrSendInFlight):
		status = http.StatusConflict
	case errors.As(err, &partial):
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dorshemer/yoman/internal/store"
)

// sendRequest is the payload for the outbound send endpoint.
type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, Success(map[string]string{"status": "healthy"}))
}

func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, Error("Invalid JSON format"))
		return
	}
	canonicalTo, err := s.msgService.ValidateAndCanonicalizeRecipient(req.To)
	if err != nil {
		slog.Warn("Server.sendHandler: recipient validation failed", "error", err, "original_to", req.To)
		writeJSONResponse(w, http.StatusBadRequest, Error(err.Error()))
		return
	}
	if req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, Error("Message body is required"))
		return
	}
	msgID, err := s.msgService.SendMessage(r.Context(), canonicalTo, req.Body)
	if err != nil {
		slog.Error("Server.sendHandler: failed to send message", "error", err, "to", canonicalTo)
		writeJSONResponse(w, http.StatusInternalServerError, Error("Failed to send message"))
		return
	}
	slog.Info("Server.sendHandler: message sent", "to", canonicalTo, "messageID", msgID)
	writeJSONResponse(w, http.StatusOK, SuccessWithMessage("Message sent", map[string]string{"message_id": msgID}))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(user)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, Error(err.Error()))
		return
	}
	sess, err := s.store.GetSession(canonical)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("Server.getSessionHandler: store failure", "error", err, "user", canonical)
		writeJSONResponse(w, http.StatusInternalServerError, Error("Failed to load session"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, Success(sess))
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(user)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, Error(err.Error()))
		return
	}
	if err := s.store.DeleteSession(canonical); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("Server.deleteSessionHandler: store failure", "error", err, "user", canonical)
		writeJSONResponse(w, http.StatusInternalServerError, Error("Failed to delete session"))
		return
	}
	slog.Info("Server.deleteSessionHandler: session reset", "user", canonical)
	writeJSONResponse(w, http.StatusOK, SuccessWithMessage("Session deleted", nil))
}

func (s *Server) mismatchesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			writeJSONResponse(w, http.StatusBadRequest, Error("limit must be between 1 and 1000"))
			return
		}
		limit = parsed
	}
	mismatches, err := s.store.ListMismatches(limit)
	if err != nil {
		slog.Error("Server.mismatchesHandler: store failure", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, Error("Failed to list mismatches"))
		return
	}
	writeJSONResponse(w, http.StatusOK, Success(mismatches))
}

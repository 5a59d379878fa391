package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/abhisek/riskdrill/internal/scoring"
	"github.com/abhisek/riskdrill/internal/session"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Error: &apiError{Code: code, Message: message, Details: details},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

var validate = validator.New()

// decode reads a JSON body into dst and runs struct validation.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid JSON body: %v", err), nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", validationMessage(err), nil)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// respondSessionError maps orchestrator errors onto HTTP statuses.
func respondSessionError(w http.ResponseWriter, err error) {
	var genErr *session.GenerationEmptyError
	var rubricErr *scoring.RubricConfigurationError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error(), nil)
	case errors.Is(err, session.ErrAlreadyFinalized):
		respondError(w, http.StatusGone, "already_finalized", err.Error(), nil)
	case errors.Is(err, session.ErrSessionLimitExceeded):
		respondError(w, http.StatusTooManyRequests, "session_limit_exceeded", err.Error(), nil)
	case errors.Is(err, session.ErrInvalidSettings):
		respondError(w, http.StatusBadRequest, "invalid_settings", err.Error(), nil)
	case errors.Is(err, session.ErrSessionNotComplete):
		respondError(w, http.StatusConflict, "session_not_complete", err.Error(), nil)
	case errors.Is(err, session.ErrSessionPaused):
		respondError(w, http.StatusConflict, "session_paused", err.Error(), nil)
	case errors.Is(err, session.ErrSessionClosed):
		respondError(w, http.StatusConflict, "session_closed", err.Error(), nil)
	case errors.Is(err, session.ErrItemMismatch):
		respondError(w, http.StatusConflict, "item_mismatch", err.Error(), nil)
	case errors.Is(err, session.ErrNoSuchResponse), errors.Is(err, scoring.ErrUnknownCriterion):
		respondError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, scoring.ErrNotPending):
		respondError(w, http.StatusConflict, "not_pending", err.Error(), nil)
	case errors.Is(err, scoring.ErrInvalidReview):
		respondError(w, http.StatusBadRequest, "invalid_review", err.Error(), nil)
	case errors.As(err, &genErr):
		respondError(w, http.StatusUnprocessableEntity, "generation_empty", err.Error(), genErr.Diagnostic)
	case errors.As(err, &rubricErr):
		slog.Error("rubric configuration error", "error", err)
		respondError(w, http.StatusInternalServerError, "rubric_configuration", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out", nil)
	default:
		slog.Error("session operation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	body := map[string]any{
		"status":          "healthy",
		"time":            time.Now().UTC().Format(time.RFC3339),
		"active_sessions": len(s.sessions.Active()),
		"checks":          results,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(apiResponse{Data: body}); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
		return
	}
	respondJSON(w, status, body)
}

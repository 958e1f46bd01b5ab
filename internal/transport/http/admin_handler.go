package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"quizhost-service/internal/app"
	"quizhost-service/internal/domain"
)

// AdminHandler exposes the session lifecycle operations to the quiz owner.
type AdminHandler struct {
	service *app.SessionService
}

func NewAdminHandler(service *app.SessionService) *AdminHandler {
	return &AdminHandler{service: service}
}

// Register mounts the admin routes on the mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/admin/quiz/{quizID}/session/start", h.startSession)
	mux.HandleFunc("PUT /v1/admin/quiz/{quizID}/session/{sessionID}", h.updateSession)
	mux.HandleFunc("GET /v1/admin/quiz/{quizID}/session/{sessionID}", h.sessionInfo)
	mux.HandleFunc("GET /v1/admin/quiz/{quizID}/sessions", h.listSessions)
	mux.HandleFunc("GET /v1/admin/quiz/{quizID}/session/{sessionID}/results", h.sessionResults)
	mux.HandleFunc("GET /v1/admin/quiz/{quizID}/session/{sessionID}/results/csv", h.sessionResultsCSV)
}

type startSessionRequest struct {
	AutoStartNum int `json:"autoStartNum"`
}

type startSessionResponse struct {
	SessionID int `json:"sessionId"`
}

type updateSessionRequest struct {
	Action string `json:"action"`
}

func (h *AdminHandler) startSession(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathInt(r, "quizID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quiz id")
		return
	}
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID, err := h.service.StartSession(r.Context(), bearerToken(r), quizID, req.AutoStartNum)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startSessionResponse{SessionID: sessionID})
}

func (h *AdminHandler) updateSession(w http.ResponseWriter, r *http.Request) {
	quizID, sessionID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.service.Transition(r.Context(), bearerToken(r), quizID, sessionID, domain.Action(req.Action)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *AdminHandler) sessionInfo(w http.ResponseWriter, r *http.Request) {
	quizID, sessionID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	info, err := h.service.GetSessionInfo(r.Context(), bearerToken(r), quizID, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *AdminHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathInt(r, "quizID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quiz id")
		return
	}
	list, err := h.service.ListSessions(r.Context(), bearerToken(r), quizID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) sessionResults(w http.ResponseWriter, r *http.Request) {
	quizID, sessionID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	results, err := h.service.GetSessionResults(r.Context(), bearerToken(r), quizID, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *AdminHandler) sessionResultsCSV(w http.ResponseWriter, r *http.Request) {
	quizID, sessionID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	csv, err := h.service.GetSessionResultsCSV(r.Context(), bearerToken(r), quizID, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if _, err := w.Write([]byte(csv)); err != nil {
		log.Printf("write csv: %v", err)
	}
}

func (h *AdminHandler) pathIDs(w http.ResponseWriter, r *http.Request) (quizID, sessionID int, ok bool) {
	quizID, err := pathInt(r, "quizID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quiz id")
		return 0, 0, false
	}
	sessionID, err = pathInt(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return 0, 0, false
	}
	return quizID, sessionID, true
}

func pathInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(r.PathValue(name))
}

// bearerToken extracts the opaque admin token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeDomainError maps error kinds to HTTP statuses. An unknown quiz behaves
// like an ownership failure so outsiders cannot probe for quiz ids.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

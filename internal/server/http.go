// Package server exposes personas over HTTP for one-shot questions and over gRPC for streamed
// replies.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erg0nix/chorus/internal/core"
	"github.com/erg0nix/chorus/internal/persona"
	"github.com/erg0nix/chorus/internal/session"
)

const maxRequestBytes = 1 << 20

type AskRequest struct {
	Question string `json:"question"`
	Persona  string `json:"persona"`
}

type AskResponse struct {
	Answer string               `json:"answer"`
	Kind   session.FragmentKind `json:"kind,omitempty"`
	Hint   string               `json:"hint,omitempty"`
	Topic  string               `json:"topic,omitempty"`
}

type PersonaInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enrichment  bool   `json:"enrichment"`
}

type errorResponse struct {
	Error     string   `json:"error"`
	Available []string `json:"available,omitempty"`
}

// HTTP answers each request with a fresh session, so requests never share history.
type HTTP struct {
	Sessions       *session.Manager
	DefaultPersona string
	Logger         *slog.Logger
}

func (h *HTTP) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", h.ask)
	mux.HandleFunc("GET /personas", h.personas)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (h *HTTP) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *HTTP) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	personaID := strings.TrimSpace(req.Persona)
	if personaID == "" {
		personaID = h.DefaultPersona
	}

	s, err := h.Sessions.NewSession(personaID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() {
		if err := s.Close(); err != nil {
			h.logger().Warn("close session", "persona", personaID, "error", err)
		}
	}()

	id := core.NewRequestID()
	h.logger().Info("ask", "request", id, "persona", personaID, "session", s.ID())

	reply := s.OneShot(r.Context(), req.Question)
	writeJSON(w, http.StatusOK, AskResponse{
		Answer: strings.TrimSpace(reply.Text),
		Kind:   reply.Kind,
		Hint:   reply.Hint,
		Topic:  reply.Topic,
	})
}

func (h *HTTP) personas(w http.ResponseWriter, _ *http.Request) {
	catalog := h.Sessions.Catalog()

	infos := make([]PersonaInfo, 0, catalog.Len())
	for _, id := range catalog.IDs() {
		p, err := catalog.Get(id)
		if err != nil {
			continue
		}
		infos = append(infos, PersonaInfo{ID: p.ID, Name: p.DisplayName, Description: p.Description, Enrichment: p.Enrichment})
	}

	writeJSON(w, http.StatusOK, infos)
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var notFound *persona.NotFoundError
	if errors.As(err, &notFound) {
		resp.Available = notFound.Available
	}

	if errors.Is(err, session.ErrUnknownPersona) {
		writeJSON(w, http.StatusNotFound, resp)
		return
	}
	writeJSON(w, http.StatusInternalServerError, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/straja-ai/tonegate/internal/activation"
)

type requestStatusBody struct {
	Status   string            `json:"status"`
	Decision *activation.Event `json:"decision"`
}

// handleRequestStatus reports the decision recorded for a recent request. Only
// the credential that made the request can read it.
func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(chi.URLParam(r, "id"))
	credential := r.Header.Get("Authorization")
	if strings.TrimSpace(credential) == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authorization credential is required"})
		return
	}

	entry, ok := s.observer.lookup(requestID, credential)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "request not found"})
		return
	}
	writeJSON(w, http.StatusOK, requestStatusBody{Status: entry.status, Decision: entry.event})
}

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mjansen/ledgerlink/internal/credstore"
	"github.com/mjansen/ledgerlink/internal/provider"
)

// tokenResponse is the body of a successful GET /v1/token.
type tokenResponse struct {
	SubjectID   string `json:"subject_id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// handleToken resolves the caller's subject and answers with a valid
// bearer token for it.
func (s *Server) handleToken(p provider.TokenProvider, resolver SubjectResolver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := resolver.SubjectFromRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		token, err := p.AccessToken(r.Context(), subjectID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(tokenResponse{
			SubjectID:   subjectID,
			AccessToken: token,
			TokenType:   "bearer",
		}); err != nil {
			slog.ErrorContext(r.Context(), "writing token response", "error", err)
		}
	})
}

// handleRevoke deletes the caller's stored credential set. Explicit
// revocation; the subject must re-authorize afterwards.
func (s *Server) handleRevoke(store credstore.Store, resolver SubjectResolver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := resolver.SubjectFromRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if err := store.Delete(r.Context(), subjectID); err != nil {
			writeError(w, r, err)
			return
		}

		slog.InfoContext(r.Context(), "revoked credential set", "subject", subjectID)
		w.WriteHeader(http.StatusNoContent)
	})
}

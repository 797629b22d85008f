package server

import (
	"errors"
	"net/http"

	"github.com/ogulcanaydogan/pulse/internal/session"
	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

// requireSession resolves the bearer session token to an active membership
// and stores the caller on the request context.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Sessions == nil {
			writeError(w, http.StatusInternalServerError, "sessions are not configured")
			return
		}
		token, ok := session.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing session token")
			return
		}
		claims, err := s.opts.Sessions.Parse(token)
		if err != nil {
			if errors.Is(err, session.ErrNoSecret) {
				writeError(w, http.StatusInternalServerError, "sessions are not configured")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}

		member, err := s.store.GetMember(r.Context(), claims.OrgID, claims.Subject)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusUnauthorized, "unknown member")
			return
		case err != nil:
			s.logger.Error("load member", "org_id", claims.OrgID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		case !member.Active:
			writeError(w, http.StatusForbidden, "membership is inactive")
			return
		}

		ctx := session.WithIdentity(r.Context(), session.Identity{
			UserID: member.UserID,
			OrgID:  member.OrgID,
			Email:  member.Email,
			Role:   member.Role,
		})
		next(w, r.WithContext(ctx))
	}
}

// requireRole rejects callers whose role is not one of roles.
func (s *Server) requireRole(next http.HandlerFunc, roles ...model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := session.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		for _, role := range roles {
			if id.Role == role {
				next(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "forbidden")
	}
}

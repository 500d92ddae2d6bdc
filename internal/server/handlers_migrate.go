package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"daybook-crypto/internal/audit"
	"daybook-crypto/internal/auth"
	"daybook-crypto/internal/fieldcrypt"
	"daybook-crypto/internal/keyring"
	"daybook-crypto/internal/migrate"
	"daybook-crypto/internal/store"
)

type migrateReq struct {
	Entries []store.SnapshotEntry `json:"entries"`
}

// handleMigrate stages the uploaded guest snapshot, then encrypts and
// uploads it under the caller's active key. The staged snapshot is
// only cleared once every document has been written and read back, so
// a failed run can be retried with the same request.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.MustClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no auth context")
		return
	}

	var req migrateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	sess := s.session(claims.Sub)
	for _, e := range req.Entries {
		if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.Collection) == "" {
			writeError(w, http.StatusBadRequest, "entry id and collection required")
			return
		}
		e.Collection = userCollection(claims.Sub, e.Collection)
		if err := sess.snapshots.Append(r.Context(), e); err != nil {
			s.log.Error("snapshot stage", zap.String("user", claims.Sub), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "snapshot staging failed")
			return
		}
	}

	m := migrate.New(sess.keys, sess.snapshots, s.docs, s.migrationSpecs(claims.Sub), s.log)
	err = m.Run(r.Context())
	switch {
	case err == nil:
		s.auditLog.Append(claims.Sub, audit.ActionMigrate)
		writeJSON(w, map[string]any{"ok": true})
	case errors.Is(err, keyring.ErrNotReady):
		writeError(w, http.StatusConflict, "key is locked")
	case errors.Is(err, migrate.ErrMigrationWrite):
		s.log.Error("migration write", zap.String("user", claims.Sub), zap.Error(err))
		writeError(w, http.StatusBadGateway, "migration write failed, snapshot kept for retry")
	default:
		s.log.Error("migration", zap.String("user", claims.Sub), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "migration failed")
	}
}

// migrationSpecs maps the per-user namespaced collection names back to
// the field specs of the collections they were derived from.
func (s *Server) migrationSpecs(user string) map[string][]fieldcrypt.FieldSpec {
	out := make(map[string][]fieldcrypt.FieldSpec, len(s.specs))
	for name, specs := range s.specs {
		out[userCollection(user, name)] = specs
	}
	return out
}

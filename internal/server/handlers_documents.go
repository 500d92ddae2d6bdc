package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"daybook-crypto/internal/auth"
	cr "daybook-crypto/internal/crypto"
	"daybook-crypto/internal/fieldcrypt"
	"daybook-crypto/internal/keyring"
	"daybook-crypto/internal/store"
)

// activeKey fetches the caller's unlocked master key. The returned
// copy must be zeroed by the caller.
func (s *Server) activeKey(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	claims, err := auth.MustClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no auth context")
		return "", nil, false
	}
	key, err := s.session(claims.Sub).keys.ActiveKey()
	if errors.Is(err, keyring.ErrNotReady) {
		writeError(w, http.StatusConflict, "key is locked")
		return "", nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "key unavailable")
		return "", nil, false
	}
	return claims.Sub, key, true
}

func (s *Server) collectionSpecs(collection string) []fieldcrypt.FieldSpec {
	return s.specs[collection]
}

func (s *Server) handleDocumentCreate(w http.ResponseWriter, r *http.Request) {
	s.putDocument(w, r, uuid.NewString(), http.StatusCreated)
}

func (s *Server) handleDocumentPut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "document id required")
		return
	}
	s.putDocument(w, r, id, http.StatusOK)
}

func (s *Server) putDocument(w http.ResponseWriter, r *http.Request, id string, okStatus int) {
	collection := chi.URLParam(r, "collection")
	user, key, ok := s.activeKey(w, r)
	if !ok {
		return
	}
	defer cr.Zero(key)

	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	enc, err := fieldcrypt.EncryptFields(doc, s.collectionSpecs(collection), key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "encrypt: "+err.Error())
		return
	}
	if err := s.docs.Put(r.Context(), userCollection(user, collection), id, enc); err != nil {
		s.log.Error("document put", zap.String("user", user), zap.Error(err))
		writeError(w, http.StatusBadGateway, "store write failed")
		return
	}
	writeJSONStatus(w, okStatus, map[string]string{"id": id})
}

func (s *Server) handleDocumentGet(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	user, key, ok := s.activeKey(w, r)
	if !ok {
		return
	}
	defer cr.Zero(key)

	doc, err := s.docs.Get(r.Context(), userCollection(user, collection), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.log.Error("document get", zap.String("user", user), zap.Error(err))
		writeError(w, http.StatusBadGateway, "store read failed")
		return
	}

	plain, err := fieldcrypt.DecryptFields(doc, s.collectionSpecs(collection), key)
	if errors.Is(err, cr.ErrAuthentication) {
		s.log.Error("document failed authentication", zap.String("user", user), zap.String("id", id))
		writeError(w, http.StatusInternalServerError, "document failed authentication")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "decrypt: "+err.Error())
		return
	}
	writeJSON(w, plain)
}

func (s *Server) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	claims, err := auth.MustClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no auth context")
		return
	}
	if err := s.docs.Delete(r.Context(), userCollection(claims.Sub, collection), id); err != nil {
		s.log.Error("document delete", zap.String("user", claims.Sub), zap.Error(err))
		writeError(w, http.StatusBadGateway, "store delete failed")
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

// userCollection namespaces stored documents per account so two
// users can reuse the same document ids.
func userCollection(user, collection string) string {
	return collection + "_" + sha256Hex(user)[:12]
}

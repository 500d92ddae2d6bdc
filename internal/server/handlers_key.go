package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"daybook-crypto/internal/audit"
	"daybook-crypto/internal/auth"
	"daybook-crypto/internal/keyring"
	"daybook-crypto/internal/phrase"
)

type keyGenerateReq struct {
	Passphrase  string `json:"passphrase"`
	DeviceBound bool   `json:"device_bound"`
}

type keyUnlockReq struct {
	Passphrase string `json:"passphrase"`
}

type keyRecoverReq struct {
	Phrase        string `json:"phrase"`
	NewPassphrase string `json:"new_passphrase"`
}

type keyRotateReq struct {
	OldPassphrase string `json:"old_passphrase"`
	NewPassphrase string `json:"new_passphrase"`
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.MustClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no auth context")
		return
	}
	sess := s.session(claims.Sub)
	writeJSON(w, map[string]string{"status": sess.keys.Status(r.Context()).String()})
}

func (s *Server) handleKeyGenerate(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.MustClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no auth context")
		return
	}

	var req keyGenerateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	var choice keyring.WrapChoice
	switch {
	case req.DeviceBound && req.Passphrase != "":
		writeError(w, http.StatusBadRequest, "choose either a passphrase or device binding")
		return
	case req.DeviceBound:
		choice = keyring.DeviceBound{}
	case req.Passphrase != "":
		if err := validatePassword(req.Passphrase); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		choice = keyring.Passphrase(req.Passphrase)
	default:
		writeError(w, http.StatusBadRequest, "passphrase or device_bound required")
		return
	}

	sess := s.session(claims.Sub)
	words, err := sess.keys.GenerateAndStore(r.Context(), choice)
	if errors.Is(err, keyring.ErrKeyExists) {
		writeError(w, http.StatusConflict, "key already exists")
		return
	}
	if err != nil {
		s.log.Error("key generate", zap.String("user", claims.Sub), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "key generation failed")
		return
	}

	s.auditLog.Append(claims.Sub, audit.ActionGenerate)
	// the recovery phrase is shown exactly once and never stored
	writeJSONStatus(w, http.StatusCreated, map[string]string{"recovery_phrase": words})
}

func (s *Server) handleKeyUnlock(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.MustClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no auth context")
		return
	}
	if !s.rlUnlockIP.allow(getClientIP(r)) || !s.rlUnlockUser.allow(claims.Sub) {
		tooMany(w, 60)
		return
	}

	var req keyUnlockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	sess := s.session(claims.Sub)
	if req.Passphrase == "" {
		err = sess.keys.UnlockWithDeviceKey(r.Context())
	} else {
		err = sess.keys.UnlockWithPassphrase(r.Context(), req.Passphrase)
	}
	if !s.writeKeyError(w, claims.Sub, err) {
		return
	}

	s.auditLog.Append(claims.Sub, audit.ActionUnlock)
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleKeyRecover(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.MustClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no auth context")
		return
	}
	if !s.rlUnlockIP.allow(getClientIP(r)) || !s.rlUnlockUser.allow(claims.Sub) {
		tooMany(w, 60)
		return
	}

	var req keyRecoverReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	sess := s.session(claims.Sub)
	if !s.writeKeyError(w, claims.Sub, sess.keys.UnlockWithRecoveryPhrase(r.Context(), req.Phrase)) {
		return
	}
	if req.NewPassphrase != "" {
		if err := validatePassword(req.NewPassphrase); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.writeKeyError(w, claims.Sub, sess.keys.RewrapWithPassphrase(r.Context(), req.NewPassphrase)) {
			return
		}
	}

	s.auditLog.Append(claims.Sub, audit.ActionRecover)
	writeJSON(w, map[string]any{"ok": true, "rewrapped": req.NewPassphrase != ""})
}

func (s *Server) handleKeyRotate(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.MustClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no auth context")
		return
	}

	var req keyRotateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := validatePassword(req.NewPassphrase); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := s.session(claims.Sub)
	if !s.writeKeyError(w, claims.Sub, sess.keys.RotatePassphrase(r.Context(), req.OldPassphrase, req.NewPassphrase)) {
		return
	}

	s.auditLog.Append(claims.Sub, audit.ActionRotate)
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleKeyLock(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.MustClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no auth context")
		return
	}
	s.session(claims.Sub).keys.Lock()
	s.auditLog.Append(claims.Sub, audit.ActionLock)
	writeJSON(w, map[string]any{"ok": true})
}

// writeKeyError maps keyring failures onto HTTP responses. It reports
// true when err was nil and the caller may continue.
func (s *Server) writeKeyError(w http.ResponseWriter, user string, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, keyring.ErrWrongPassphrase):
		writeError(w, http.StatusUnauthorized, "wrong passphrase")
	case errors.Is(err, phrase.ErrInvalidPhrase):
		writeError(w, http.StatusUnauthorized, "invalid recovery phrase")
	case errors.Is(err, keyring.ErrNoKey):
		writeError(w, http.StatusNotFound, "no key for this account")
	case errors.Is(err, keyring.ErrNotReady):
		writeError(w, http.StatusConflict, "key is locked")
	case errors.Is(err, keyring.ErrCorruptedKeyStore):
		s.log.Error("corrupted key record", zap.String("user", user), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "key record unreadable")
	default:
		s.log.Error("key operation", zap.String("user", user), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "key operation failed")
	}
	return false
}

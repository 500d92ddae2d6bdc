package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"daybook-crypto/internal/auth"
)

type registerReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.rlRegisterIP.allow(getClientIP(r)) {
		tooMany(w, 60)
		return
	}

	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	username := strings.TrimSpace(strings.ToLower(req.Username))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}
	if err := validatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(auth.DefaultArgon, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash failure")
		return
	}
	err = s.users.Add(&auth.User{Username: username, PassHash: hash})
	if errors.Is(err, auth.ErrUserExists) {
		writeError(w, http.StatusConflict, "username taken")
		return
	}
	if err != nil {
		s.log.Error("register", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store failure")
		return
	}

	s.log.Info("user registered", zap.String("user", username))
	writeJSONStatus(w, http.StatusCreated, map[string]string{"username": username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.rlLoginIP.allow(getClientIP(r)) {
		tooMany(w, 60)
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	username := strings.TrimSpace(strings.ToLower(req.Username))
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if !s.rlLoginID.allow(username) {
		tooMany(w, 60)
		return
	}

	u, err := s.users.FindByUsername(username)
	if err != nil {
		// same response as a bad password so usernames cannot be probed
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	ok, err := auth.VerifyPassword(req.Password, u.PassHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, exp, err := s.signer.IssueToken(username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token failure")
		return
	}
	writeJSON(w, auth.LoginResponse{Token: token, ExpiresAt: exp})
}

package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"daybook-crypto/internal/audit"
	"daybook-crypto/internal/auth"
	"daybook-crypto/internal/fieldcrypt"
	"daybook-crypto/internal/keyring"
	"daybook-crypto/internal/platform"
	"daybook-crypto/internal/store"
)

// DefaultFieldSpecs names the encrypted fields of each built-in
// collection. Fields not listed here are stored as-is.
var DefaultFieldSpecs = map[string][]fieldcrypt.FieldSpec{
	"journal": {
		{Name: "title", Encoding: fieldcrypt.EncodingString},
		{Name: "body", Encoding: fieldcrypt.EncodingString},
		{Name: "tags", Encoding: fieldcrypt.EncodingJSON},
	},
	"people": {
		{Name: "name", Encoding: fieldcrypt.EncodingString},
		{Name: "notes", Encoding: fieldcrypt.EncodingString},
	},
	"contexts": {
		{Name: "name", Encoding: fieldcrypt.EncodingString},
		{Name: "details", Encoding: fieldcrypt.EncodingJSON},
	},
}

type userSession struct {
	keys      *keyring.Manager
	snapshots store.SnapshotStore
}

type Server struct {
	cfg Config

	router   chi.Router
	signer   *auth.JWTSigner
	users    auth.UserStore
	docs     store.DocumentStore
	records  store.KeyRecordStore
	keychain platform.Keychain
	auditLog *audit.Log
	log      *zap.Logger
	specs    map[string][]fieldcrypt.FieldSpec

	mu       sync.Mutex
	sessions map[string]*userSession

	rlLoginIP    *multiLimiter
	rlLoginID    *multiLimiter
	rlRegisterIP *multiLimiter
	rlUnlockIP   *multiLimiter
	rlUnlockUser *multiLimiter
}

func New(ctx context.Context, cfg Config, log *zap.Logger) (*Server, error) {
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	for _, dir := range []string{cfg.DataDir, filepath.Join(cfg.DataDir, "snapshots")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}

	priv, _, err := auth.GenerateEd25519()
	if err != nil {
		return nil, err
	}

	var users auth.UserStore
	var docs store.DocumentStore
	if cfg.MongoURI != "" {
		mu, err := auth.NewMongoUserStore(ctx, cfg.MongoURI, cfg.MongoDB, cfg.UsersCollection)
		if err != nil {
			return nil, err
		}
		md, err := store.NewMongoDocumentStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		users, docs = mu, md
	} else {
		log.Warn("no mongo uri configured, using in-memory stores")
		users, docs = auth.NewMemoryUserStore(), store.NewMemoryDocumentStore()
	}

	s := &Server{
		cfg:      cfg,
		signer:   auth.NewJWTSigner(priv, cfg.JWTIssuer, cfg.TokenTTL),
		users:    users,
		docs:     docs,
		records:  store.NewFileKeyRecordStore(filepath.Join(cfg.DataDir, "keys")),
		keychain: platform.NewFileKeychain(filepath.Join(cfg.DataDir, "keychain")),
		auditLog: audit.New(),
		log:      log,
		specs:    DefaultFieldSpecs,
		sessions: map[string]*userSession{},
	}

	perWindow := func(n int, window time.Duration) float64 { return float64(n) / window.Seconds() }

	s.rlLoginIP = newMultiLimiter(rate.Limit(perWindow(10, time.Minute)), 10, time.Hour)
	s.rlLoginID = newMultiLimiter(rate.Limit(perWindow(5, time.Minute)), 5, time.Hour)
	s.rlRegisterIP = newMultiLimiter(rate.Limit(perWindow(5, 10*time.Minute)), 5, time.Hour)
	s.rlUnlockIP = newMultiLimiter(rate.Limit(perWindow(10, time.Minute)), 10, time.Hour)
	s.rlUnlockUser = newMultiLimiter(rate.Limit(perWindow(5, time.Minute)), 5, time.Hour)

	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("listening", zap.String("addr", s.cfg.Addr))
	return srv.ListenAndServe()
}

// session returns the per-user session, creating the keyring manager
// and snapshot store on first use.
func (s *Server) session(userID string) *userSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[userID]
	if sess == nil {
		snapPath := filepath.Join(s.cfg.DataDir, "snapshots", sha256Hex(userID)+".json")
		sess = &userSession{
			keys:      keyring.NewManager(userID, s.records, s.keychain, s.log),
			snapshots: store.NewFileSnapshotStore(snapPath),
		}
		s.sessions[userID] = sess
	}
	return sess
}

func sha256Hex(in string) string {
	sum := sha256.Sum256([]byte(in))
	return hex.EncodeToString(sum[:16])
}

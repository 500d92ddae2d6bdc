package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"daybook-crypto/internal/logging"
	"daybook-crypto/internal/platform"
	"daybook-crypto/internal/server"
)

func main() {
	logging.Init()
	log := logging.L
	defer log.Sync()

	if err := platform.DisableCoreDumps(); err != nil {
		log.Warn("could not disable core dumps", zap.Error(err))
	}

	cfg := server.Config{
		Addr:            envOr("DAYBOOK_ADDR", ":8787"),
		MongoURI:        os.Getenv("DAYBOOK_MONGO_URI"),
		MongoDB:         envOr("DAYBOOK_MONGO_DB", "daybook"),
		UsersCollection: envOr("DAYBOOK_USERS_COLL", "users"),
		DataDir:         envOr("DAYBOOK_DATA_DIR", "./daybook-data"),
		JWTIssuer:       envOr("DAYBOOK_JWT_ISSUER", "daybook-backend"),
	}
	if ttl := os.Getenv("DAYBOOK_TOKEN_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatal("bad DAYBOOK_TOKEN_TTL", zap.String("value", ttl), zap.Error(err))
		}
		cfg.TokenTTL = d
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	s, err := server.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal("server init", zap.Error(err))
	}

	if err := s.ListenAndServe(); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

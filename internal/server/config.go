package server

import "time"

type Config struct {
	Addr            string
	MongoURI        string
	MongoDB         string
	UsersCollection string
	DataDir         string
	JWTIssuer       string
	TokenTTL        time.Duration
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8787"
	}
	if c.UsersCollection == "" {
		c.UsersCollection = "users"
	}
	if c.DataDir == "" {
		c.DataDir = "./daybook-data"
	}
	if c.JWTIssuer == "" {
		c.JWTIssuer = "daybook-backend"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 15 * time.Minute
	}
}

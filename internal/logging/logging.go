// Package logging builds the shared structured logger. Key material and
// passphrases must never be logged; callers log ids and state names only.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	// L is the shared structured logger used across the project.
	L    *zap.Logger
	once sync.Once
)

func init() {
	Init()
}

// Init builds the global logger if it has not been constructed yet.
func Init() {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Sampling = nil
		logger, err := cfg.Build()
		if err != nil {
			panic(err)
		}
		L = logger
	})
}

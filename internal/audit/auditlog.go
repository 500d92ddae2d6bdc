// Package audit keeps a hash-chained, in-memory record of key lifecycle
// events. Entries never contain key material or plaintext; the chain makes
// after-the-fact tampering detectable.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	ActionGenerate = "key.generate"
	ActionUnlock   = "key.unlock"
	ActionRecover  = "key.recover"
	ActionRotate   = "key.rotate"
	ActionLock     = "key.lock"
	ActionMigrate  = "data.migrate"
)

type Entry struct {
	TS     int64  `json:"ts"`
	User   string `json:"user"`
	Action string `json:"action"`
	Hash   string `json:"hash"`
}

type Log struct {
	mu       sync.Mutex
	lastHash []byte
	entries  []Entry
}

func New() *Log { return &Log{} }

func (l *Log) Append(user, action string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := sha256.New()
	h.Write(l.lastHash)
	h.Write([]byte(user))
	h.Write([]byte(action))
	sum := h.Sum(nil)
	l.lastHash = sum
	e := Entry{
		TS:     time.Now().Unix(),
		User:   user,
		Action: action,
		Hash:   hex.EncodeToString(sum),
	}
	l.entries = append(l.entries, e)
	return e
}

// Verify recomputes the chain and fails on the first broken link.
func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev []byte
	for i, e := range l.entries {
		h := sha256.New()
		h.Write(prev)
		h.Write([]byte(e.User))
		h.Write([]byte(e.Action))
		sum := h.Sum(nil)
		if hex.EncodeToString(sum) != e.Hash {
			return fmt.Errorf("audit chain broken at entry %d", i)
		}
		prev = sum
	}
	return nil
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

package auth

import (
	"errors"
	"sync"
)

type User struct {
	Username string
	PassHash string // argon2id encoded string
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

type UserStore interface {
	FindByUsername(username string) (*User, error)
	Add(u *User) error
	UpdatePassword(username, newHash string) error
}

type MemoryUserStore struct {
	mu         sync.Mutex
	byUsername map[string]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byUsername: map[string]*User{}}
}

func (s *MemoryUserStore) Add(u *User) error {
	if u == nil {
		return errors.New("user is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[u.Username]; exists {
		return ErrUserExists
	}
	clone := *u
	s.byUsername[u.Username] = &clone
	return nil
}

func (s *MemoryUserStore) UpdatePassword(username, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byUsername[username]
	if !ok {
		return ErrUserNotFound
	}
	u.PassHash = newHash
	return nil
}

func (s *MemoryUserStore) FindByUsername(username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byUsername[username]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

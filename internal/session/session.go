// Package session remembers which email is logged in behind a token. Nothing
// else about the user is stored.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidEmail = errors.New("invalid email address")
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Session is a logged-in identity.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, email string) (Session, error)
	Get(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}

// NormalizeEmail trims and validates an email.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if !emailRe.MatchString(email) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

func newToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func newSession(email string, now time.Time, ttl time.Duration) (Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	tok, err := newToken()
	if err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}
	return Session{Token: tok, Email: email, CreatedAt: now, ExpiresAt: now.Add(ttl)}, nil
}

var _ Store = (*Memory)(nil)

// Memory is a process-local Store, used when Redis is not configured.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{sessions: make(map[string]Session), ttl: ttl, now: time.Now}
}

func (m *Memory) Create(_ context.Context, email string) (Session, error) {
	s, err := newSession(email, m.now(), m.ttl)
	if err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	m.sweepLocked(s.CreatedAt)
	m.sessions[s.Token] = s
	m.mu.Unlock()
	return s, nil
}

// sweepLocked drops sessions expired at now.
func (m *Memory) sweepLocked(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for tok, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, tok)
		}
	}
}

func (m *Memory) Get(_ context.Context, token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	if m.ttl > 0 && !m.now().Before(s.ExpiresAt) {
		delete(m.sessions, token)
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
	return nil
}

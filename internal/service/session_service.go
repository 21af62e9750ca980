// Package service contains application services.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/certdesk/admin-console/internal/domain/session"
)

// SessionService owns the in-memory admin session and keeps it in step with
// the durable slot store. Reads are served from memory; writes go to the
// store first so memory never claims a session that was not persisted.
type SessionService struct {
	store  session.SlotStore
	logger *slog.Logger

	// writeMu serializes SetCredentials, Logout and ClearIfCurrent, each
	// covering its storage write, the swap and listener calls.
	writeMu sync.Mutex

	mu        sync.RWMutex
	current   session.Session
	listeners map[int]func(session.Session)
	nextID    int
}

// NewSessionService creates a SessionService. Call Initialize to restore a
// persisted session.
func NewSessionService(store session.SlotStore, logger *slog.Logger) *SessionService {
	return &SessionService{
		store:     store,
		logger:    logger,
		listeners: make(map[int]func(session.Session)),
	}
}

// Initialize restores the session from the slot store. It never fails:
// unreadable storage or a malformed profile degrade to absent values.
func (s *SessionService) Initialize(ctx context.Context) session.Session {
	var restored session.Session

	slots, err := s.store.Load(ctx, session.TokenSlot, session.UserSlot)
	if err != nil {
		s.logger.Warn("session storage unreadable, starting logged out", "error", err)
	} else {
		restored.Token = slots[session.TokenSlot]
		if raw, ok := slots[session.UserSlot]; ok && raw != "" && raw != "null" {
			var user session.AdminUser
			if err := json.Unmarshal([]byte(raw), &user); err != nil {
				s.logger.Warn("stored admin profile is malformed, ignoring it", "error", err)
			} else {
				restored.User = &user
			}
		}
	}

	s.mu.Lock()
	s.current = restored
	s.mu.Unlock()

	s.logger.Debug("session initialized", "authenticated", restored.IsAuthenticated())
	return restored.Clone()
}

// SetCredentials persists token and user together and makes them current.
func (s *SessionService) SetCredentials(ctx context.Context, token string, user *session.AdminUser) error {
	if token == "" {
		return session.ErrEmptyToken
	}

	userJSON := "null"
	if user != nil {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("serialize admin profile: %w", err)
		}
		userJSON = string(data)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.Store(ctx, map[string]string{
		session.TokenSlot: token,
		session.UserSlot:  userJSON,
	}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	next := session.Session{Token: token}
	if user != nil {
		u := *user
		next.User = &u
	}
	s.replace(next)

	if user != nil {
		s.logger.Info("admin logged in", "user_id", user.ID, "email", user.Email)
	} else {
		s.logger.Info("admin logged in")
	}
	return nil
}

// Logout clears the session in memory and in storage. It is idempotent.
// The in-memory session is cleared even when storage fails, and the
// storage error is returned.
func (s *SessionService) Logout(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.logoutLocked(ctx)
}

func (s *SessionService) logoutLocked(ctx context.Context) error {
	s.replace(session.Session{})

	if err := s.store.Remove(ctx, session.TokenSlot, session.UserSlot); err != nil {
		return fmt.Errorf("clear persisted session: %w", err)
	}
	s.logger.Info("admin logged out")
	return nil
}

// ClearIfCurrent logs out only if token is still the current token.
// It reports whether the session was cleared. A login running at the same
// time either completes first, making token stale, or waits for the clear.
func (s *SessionService) ClearIfCurrent(ctx context.Context, token string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if token == "" || token != s.Token() {
		return false
	}
	if err := s.logoutLocked(ctx); err != nil {
		s.logger.Warn("failed to clear rejected session from storage", "error", err)
	}
	return true
}

// Current returns a copy of the current session.
func (s *SessionService) Current() session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Token returns the current bearer token, or "" when logged out.
func (s *SessionService) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

// IsAuthenticated reports whether a token is present.
func (s *SessionService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.IsAuthenticated()
}

// OnChange registers fn to run after every session change. fn runs
// synchronously on the goroutine that made the change and must not call
// back into SetCredentials, Logout or ClearIfCurrent. The returned func unregisters fn.
func (s *SessionService) OnChange(fn func(session.Session)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *SessionService) replace(next session.Session) {
	s.mu.Lock()
	s.current = next
	listeners := make([]func(session.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next.Clone())
	}
}

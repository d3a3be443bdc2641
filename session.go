package aceconnect

import (
	"sync"

	"go.uber.org/zap"
)

// Session is the authenticated identity of this client process.
type Session struct {
	UserID int64
	Token  string
	Role   Role
	User   User
}

// SessionStore holds at most one live Session. It is created with the Client
// and shared by every sub-client; the token is attached to each REST call.
type SessionStore struct {
	mu      sync.RWMutex
	current *Session
	tokens  TokenStore
	logger  *zap.Logger
}

func newSessionStore(tokens TokenStore, logger *zap.Logger) *SessionStore {
	return &SessionStore{tokens: tokens, logger: logger}
}

// Current returns a copy of the live session, or nil.
func (s *SessionStore) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// UserID returns the current user's id, or 0 without a session.
func (s *SessionStore) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.UserID
}

// Token returns the bearer token of the live session.
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current != nil {
		return s.current.Token
	}
	return ""
}

func (s *SessionStore) establish(token string, user User) (*Session, error) {
	sess := &Session{UserID: user.ID, Token: token, Role: user.Role, User: user}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	s.logger.Info("session established", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	if err := s.tokens.Save(token); err != nil {
		return sess, err
	}
	cp := *sess
	return &cp, nil
}

// updateUser refreshes the merged user record of the live session.
func (s *SessionStore) updateUser(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current.User = user
	s.current.Role = user.Role
}

// clear destroys the session and the persisted token.
func (s *SessionStore) clear() error {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	s.mu.Unlock()

	if had {
		s.logger.Info("session cleared")
	}
	return s.tokens.Clear()
}

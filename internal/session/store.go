// Package session owns the authentication token for the POS operator.
// The token is a single owned state cell: created on login, destroyed on
// logout or on the first 401 seen by the transport. It is persisted to
// disk so a process restart preserves authentication.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Store holds the current bearer token. All access goes through
// Token/SetToken/Clear; no component reads the token from ambient state.
type Store struct {
	mu     sync.RWMutex
	token  string
	path   string
	hooks  []func()
	logger *zap.Logger
}

type tokenFile struct {
	AccessToken string `json:"access_token"`
}

// NewStore creates a session store backed by the token file at path.
// An existing token file is loaded so a restart keeps the session.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		// Corrupt token file: start unauthenticated rather than fail.
		logger.Warn("session: discarding unreadable token file",
			zap.String("path", path),
			zap.Error(err),
		)
		return s, nil
	}

	s.token = tf.AccessToken
	if s.token != "" {
		logger.Info("session: restored token", zap.String("subject", tokenSubject(s.token)))
	}
	return s, nil
}

// Token returns the current token, if one is held. Presence of a token is
// necessary but not sufficient for validity; the backend is authoritative.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken stores and persists a fresh token (login path).
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.Marshal(tokenFile{AccessToken: token})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}

	s.logger.Info("session: token stored", zap.String("subject", tokenSubject(token)))
	return nil
}

// Clear removes the token (logout path). It does not invoke the
// unauthorized hooks; those fire only on a 401.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

func (s *Store) clearLocked() error {
	s.token = ""
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// OnUnauthorized registers a hook invoked when the transport observes a
// 401. This is the explicit re-authentication signal the host application
// subscribes to; there is no implicit restart.
func (s *Store) OnUnauthorized(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Invalidate clears the token in response to a 401 and notifies
// subscribers. Only the transport's 401 handler may call this.
func (s *Store) Invalidate() {
	s.mu.Lock()
	if err := s.clearLocked(); err != nil {
		s.logger.Warn("session: failed to remove token file on 401", zap.Error(err))
	}
	hooks := make([]func(), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	s.logger.Info("session: invalidated by 401, re-authentication required")
	for _, fn := range hooks {
		fn()
	}
}

// tokenSubject peeks at the JWT subject claim for logging. The token is
// NOT validated here; the backend is the only verifier.
func tokenSubject(token string) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "opaque"
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	return "unknown"
}

// DefaultTokenPath returns the default on-disk token location.
func DefaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ".pos/token"
	}
	return filepath.Join(home, ".pos", "token")
}

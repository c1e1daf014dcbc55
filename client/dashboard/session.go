package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/task-tracker/domain/user"
)

// CredentialSetter receives the session token. *taskclient.Client implements it.
type CredentialSetter interface {
	SetCredential(token string)
}

type sessionFile struct {
	Token string        `json:"token"`
	User  *user.Profile `json:"user"`
}

// Session keeps the signed-in user's token and profile, persists them to a
// file and keeps the client's credential in sync.
type Session struct {
	path   string
	client CredentialSetter

	mu    sync.RWMutex
	token string
	user  *user.Profile
}

// OpenSession restores a session from path, if present, and pushes its token
// into client. An empty path keeps the session in memory only.
func OpenSession(path string, client CredentialSetter) (*Session, error) {
	s := &Session{path: path, client: client}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read session: %w", err)
		default:
			var f sessionFile
			if err := json.Unmarshal(data, &f); err != nil {
				return nil, fmt.Errorf("failed to parse session %s: %w", path, err)
			}
			s.token, s.user = f.Token, f.User
		}
	}

	client.SetCredential(s.token)
	return s, nil
}

// Login stores the token and user and persists them.
func (s *Session) Login(token string, u user.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token, s.user = token, &u
	s.client.SetCredential(token)
	return s.save()
}

// Logout forgets the token and user and removes the session file.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token, s.user = "", nil
	s.client.SetCredential("")
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// Token returns the current token, empty when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the signed-in user.
func (s *Session) User() (user.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return user.Profile{}, false
	}
	return *s.user, true
}

// LoggedIn reports whether a token is held.
func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}

func (s *Session) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(sessionFile{Token: s.token, User: s.user})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

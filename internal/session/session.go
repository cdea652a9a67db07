// Package session persists the relay bearer token between runs.
//
// The token is written to a mode-0600 JSON file. Expiry is read from the
// token's own exp claim without verifying the signature - the relay is
// the verifier; the client only wants to know whether presenting the
// token is pointless.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session holds the current credentials and mirrors them to disk.
// Safe for concurrent use.
type Session struct {
	mu    sync.Mutex
	path  string
	token string
	email string
}

type fileFormat struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// Load opens the session at path, reading stored credentials if the
// file exists. A missing file is a logged-out session, not an error.
func Load(path string) (*Session, error) {
	s := &Session{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", path, err)
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	s.token = f.Token
	s.email = f.Email
	return s, nil
}

// Token returns the stored bearer token, "" when logged out. Suitable
// as a relay.TokenSource.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Email returns the account the token belongs to.
func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// Authenticated reports whether a token is present at all. It says
// nothing about validity; see Expired.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// SetCredentials stores a new token and writes it to disk.
func (s *Session) SetCredentials(token, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.email = email
	return s.persist()
}

// Clear forgets the credentials and removes the file.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.email = ""
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session %s: %w", s.path, err)
	}
	return nil
}

// Expired reports whether the stored token's exp claim has passed. A
// missing token counts as expired; a token without an exp claim, or one
// that doesn't parse as a JWT, is presented to the relay as-is and left
// for the server to judge.
func (s *Session) Expired(now time.Time) bool {
	tok := s.Token()
	if tok == "" {
		return true
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}

func (s *Session) persist() error {
	data, err := json.Marshal(fileFormat{Token: s.token, Email: s.email})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session %s: %w", s.path, err)
	}
	return nil
}

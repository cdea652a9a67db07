package relay

import (
	"context"
	"fmt"
)

// Credentials is a successful login or registration result.
type Credentials struct {
	Token string
	Email string
}

type wireAuth struct {
	Token *string `json:"token"`
	User  *struct {
		Email *string `json:"email"`
	} `json:"user"`
}

func (w *wireAuth) toCredentials(fallbackEmail string) (Credentials, error) {
	if w.Token == nil || *w.Token == "" {
		return Credentials{}, fmt.Errorf("auth response missing token")
	}
	creds := Credentials{Token: *w.Token, Email: fallbackEmail}
	if w.User != nil && w.User.Email != nil && *w.User.Email != "" {
		creds.Email = *w.User.Email
	}
	return creds, nil
}

// Login exchanges email/password for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (Credentials, error) {
	var w wireAuth
	payload := map[string]string{"email": email, "password": password}
	if err := c.postJSON(ctx, "/auth/login", payload, &w); err != nil {
		return Credentials{}, fmt.Errorf("login: %w", err)
	}
	creds, err := w.toCredentials(email)
	if err != nil {
		return Credentials{}, fmt.Errorf("login: %w", err)
	}
	return creds, nil
}

// Register creates an account and logs it in.
func (c *Client) Register(ctx context.Context, email, password string) (Credentials, error) {
	var w wireAuth
	payload := map[string]string{"email": email, "password": password}
	if err := c.postJSON(ctx, "/auth/register", payload, &w); err != nil {
		return Credentials{}, fmt.Errorf("register: %w", err)
	}
	creds, err := w.toCredentials(email)
	if err != nil {
		return Credentials{}, fmt.Errorf("register: %w", err)
	}
	return creds, nil
}

// Ping verifies the relay is reachable and the session (if any) is
// accepted. Used by the status command before starting to poll.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.getJSON(ctx, "/ping", nil, nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

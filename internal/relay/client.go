package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TokenSource supplies the current bearer token. Returning "" means no
// session; requests go out unauthenticated and the server answers 401.
type TokenSource func() string

// Client talks to the relay's REST API.
//
// All methods are safe for concurrent use. Reads retry transport and 5xx
// failures within retryBudget; writes are fire-once.
type Client struct {
	base        string
	http        *http.Client
	token       TokenSource
	retryBudget time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokenSource sets the bearer token supplier.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithRetryBudget bounds the total time spent retrying an idempotent
// read. Zero disables read retries entirely.
func WithRetryBudget(d time.Duration) Option {
	return func(c *Client) { c.retryBudget = d }
}

// New creates a Client for the given API base URL.
func New(base string, opts ...Option) *Client {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}
	c := &Client{
		base:        strings.TrimRight(base, "/"),
		http:        &http.Client{Transport: tr, Timeout: 15 * time.Second},
		token:       func() string { return "" },
		retryBudget: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMessages fetches the authoritative message set for a conversation.
//
// lastFingerprint is the caller's cached fingerprint ("" when none); the
// server compares and reports changed accordingly. Idempotent and safe to
// repeat - retry policy beyond the internal budget is the caller's.
func (c *Client) GetMessages(ctx context.Context, chatID, lastFingerprint string) (Batch, error) {
	if chatID == "" {
		return Batch{}, fmt.Errorf("get messages: empty chat id")
	}
	q := url.Values{}
	if lastFingerprint != "" {
		q.Set("hash", lastFingerprint)
	}
	var w wireBatch
	if err := c.getJSON(ctx, "/messages/"+url.PathEscape(chatID), q, &w); err != nil {
		return Batch{}, fmt.Errorf("get messages for chat %s: %w", chatID, err)
	}
	b, err := w.toBatch(lastFingerprint)
	if err != nil {
		return Batch{}, fmt.Errorf("get messages for chat %s: %w", chatID, err)
	}
	return b, nil
}

// ListConversations fetches the full conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var raw []wireConversation
	if err := c.getJSON(ctx, "/conversations", nil, &raw); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]Conversation, 0, len(raw))
	for i := range raw {
		conv, err := raw[i].toConversation()
		if err != nil {
			return nil, fmt.Errorf("list conversations: entry %d: %w", i, err)
		}
		out = append(out, conv)
	}
	return out, nil
}

// Send delivers one message. Group sends address the chat id; 1:1 sends
// address the recipient handle. Acknowledgement is the only delivery
// signal this call produces - confirmation arrives through later polls.
// Never retried.
func (c *Client) Send(ctx context.Context, recipient, chatID, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	if recipient == "" && chatID == "" {
		return ErrNoRecipient
	}

	payload := map[string]any{"message": body}
	if recipient != "" {
		payload["to"] = recipient
	} else {
		payload["chat_id"] = chatID
	}

	var w struct {
		Status  *string `json:"status"`
		Success *bool   `json:"success"`
		Message *string `json:"message"`
	}
	if err := c.postJSON(ctx, "/send", payload, &w); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if (w.Status != nil && *w.Status == "sent") || (w.Success != nil && *w.Success) {
		return nil
	}
	msg := "message not sent"
	if w.Message != nil && *w.Message != "" {
		msg = *w.Message
	}
	return fmt.Errorf("send: %w", &ServerError{Status: http.StatusOK, Message: msg})
}

// getJSON issues an idempotent GET with a bounded backoff retry for
// transport errors and 5xx responses. 401 and 4xx are terminal.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	op := func() error {
		req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err // retryable transport failure
		}
		return c.decodeResponse(resp, out, true)
	}

	if c.retryBudget <= 0 {
		err := op()
		return unwrapPermanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.retryBudget
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// postJSON issues a fire-once write. No retries: a timed-out send may
// still have been delivered, and retrying would double-send.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	return c.writeJSON(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) writeJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return unwrapPermanent(c.decodeResponse(resp, out, false))
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// decodeResponse maps status codes onto the error taxonomy and decodes a
// 2xx body into out (when out is non-nil). When retrying is true, errors
// that must not be retried are wrapped as backoff.Permanent.
func (c *Client) decodeResponse(resp *http.Response, out any, retrying bool) error {
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	permanent := func(err error) error {
		if retrying {
			return backoff.Permanent(err)
		}
		return err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return permanent(ErrUnauthenticated)
	case resp.StatusCode >= 500:
		// Retryable for idempotent reads.
		return &ServerError{Status: resp.StatusCode, Message: serverMessage(resp.Body)}
	case resp.StatusCode >= 400:
		return permanent(&ServerError{Status: resp.StatusCode, Message: serverMessage(resp.Body)})
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// serverMessage extracts the error text the relay embeds in failure
// bodies ({"error": ...} or {"message": ...}).
func serverMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Debug("relay error body not json", "body_len", len(data))
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

// unwrapPermanent strips the backoff marker so callers see the taxonomy
// error, not the retry-control wrapper. backoff.Retry unwraps this
// itself; the non-retrying paths need it done by hand.
func unwrapPermanent(err error) error {
	var p *backoff.PermanentError
	if errors.As(err, &p) {
		return p.Err
	}
	return err
}

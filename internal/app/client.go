package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"relaychat/internal/metrics"
	"relaychat/internal/notes"
	"relaychat/internal/poller"
	"relaychat/internal/reconcile"
	"relaychat/internal/relay"
	"relaychat/internal/state"
)

// Relay is the slice of the relay API the client drives directly. The
// note overlay holds its own slice (notes.Service).
type Relay interface {
	notes.Service
	GetMessages(ctx context.Context, chatID, lastFingerprint string) (relay.Batch, error)
	ListConversations(ctx context.Context) ([]relay.Conversation, error)
	Send(ctx context.Context, recipient, chatID, body string) error
}

// Client is the assembled chat client. Safe for concurrent use; the
// poll scheduler and the CLI both call into it.
type Client struct {
	relay   Relay
	store   *state.Store
	overlay *notes.Overlay
	sched   *poller.Scheduler
	mets    *metrics.Metrics
	logger  *slog.Logger

	refreshInterval time.Duration
	pollOpts        []poller.Option

	mu            sync.Mutex
	reconciler    *reconcile.Reconciler
	echoes        *reconcile.EchoTracker
	conversations []relay.Conversation
	messages      map[string][]reconcile.Message
	selected      string
	compose       string

	authExpired chan struct{}
	expireOnce  sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the counter set. Defaults to a fresh one.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.mets = m }
}

// WithRefreshInterval sets the conversation-list refresh cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Client) { c.refreshInterval = d }
}

// WithPollOptions passes scheduler options through (interval, burst
// offsets; tests shorten both).
func WithPollOptions(opts ...poller.Option) Option {
	return func(c *Client) { c.pollOpts = append(c.pollOpts, opts...) }
}

// New assembles a Client over an authenticated relay and an open state
// store. Run must be called for polling and refresh to happen.
func New(r Relay, st *state.Store, opts ...Option) *Client {
	c := &Client{
		relay:           r,
		store:           st,
		logger:          slog.Default(),
		refreshInterval: 30 * time.Second,
		reconciler:      reconcile.NewReconciler(),
		echoes:          reconcile.NewEchoTracker(reconcile.NewTokenSource()),
		messages:        make(map[string][]reconcile.Message),
		authExpired:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mets == nil {
		c.mets = metrics.New()
	}
	c.overlay = notes.NewOverlay(r, c.logger)

	schedOpts := append([]poller.Option{
		poller.WithLogger(c.logger),
		poller.WithAuthExpired(c.expireAuth),
	}, c.pollOpts...)
	c.sched = poller.New(countingFetcher{inner: r, mets: c.mets}, c, schedOpts...)
	return c
}

// Run seeds persisted fingerprints, starts the poll scheduler and the
// conversation refresher, and blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	if err := c.seedFingerprints(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sched.Run(ctx)
	}()

	if err := c.RefreshConversations(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("initial conversation refresh failed", "error", err)
	}

	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-c.authExpired:
			cancel()
			wg.Wait()
			return relay.ErrUnauthenticated
		case <-ticker.C:
			if err := c.RefreshConversations(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("conversation refresh failed", "error", err)
			}
		}
	}
}

// AuthExpired is closed when a fetch comes back unauthenticated.
func (c *Client) AuthExpired() <-chan struct{} {
	return c.authExpired
}

func (c *Client) expireAuth() {
	c.expireOnce.Do(func() { close(c.authExpired) })
}

func (c *Client) seedFingerprints(ctx context.Context) error {
	fps, err := c.store.Fingerprints(ctx)
	if err != nil {
		return fmt.Errorf("seed fingerprints: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for chatID, fp := range fps {
		c.reconciler.Seed(chatID, fp)
	}
	return nil
}

// LastFingerprint implements poller.Sink.
func (c *Client) LastFingerprint(chatID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	fp, _ := c.reconciler.Fingerprint(chatID)
	return fp
}

// Apply implements poller.Sink: one fetch result is reconciled into the
// view. Called from the scheduler goroutine only.
func (c *Client) Apply(chatID string, batch relay.Batch, force bool) {
	c.mu.Lock()
	prev := c.messages[chatID]
	res := c.reconciler.Reconcile(chatID, prev, batch.Messages, batch.Fingerprint, batch.Changed, force)
	if res.Updated {
		c.messages[chatID] = res.Messages
	}
	c.mu.Unlock()

	if !res.Updated {
		c.mets.NoopCycles.Inc()
		return
	}
	c.mets.Reconciliations.Inc()
	for i := 0; i < res.Superseded; i++ {
		c.mets.EchoesResolved.Inc()
	}
	c.logger.Debug("reconciled",
		"chat_id", chatID,
		"messages", len(res.Messages),
		"superseded", res.Superseded,
		"retained", res.Retained)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.SetFingerprint(ctx, chatID, res.Fingerprint); err != nil {
		c.logger.Warn("fingerprint persist failed", "chat_id", chatID, "error", err)
	}
	if batch.Changed {
		ids := make([]string, 0, len(batch.Messages))
		for _, m := range batch.Messages {
			ids = append(ids, m.ID)
		}
		// Note loads are slow (one request per new message) and purely
		// decorative; they must not hold up the scheduler goroutine.
		go func() {
			loadCtx, loadCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer loadCancel()
			c.overlay.LoadMessageNotes(loadCtx, ids)
		}()
	}
}

// Select makes chatID the active conversation: it is marked read, its
// notes load, and polling switches to it.
func (c *Client) Select(ctx context.Context, chatID string) error {
	c.mu.Lock()
	c.selected = chatID
	c.compose = ""
	c.mu.Unlock()

	if err := c.store.MarkRead(ctx, chatID); err != nil {
		c.logger.Warn("mark read failed", "chat_id", chatID, "error", err)
	}
	c.overlay.SetConversation(ctx, chatID)
	c.sched.Select(chatID)
	return nil
}

// Deselect leaves the current conversation and stops polling.
func (c *Client) Deselect() {
	c.mu.Lock()
	c.selected = ""
	c.compose = ""
	c.mu.Unlock()
	c.sched.Deselect()
}

// Selected returns the active conversation id, "" when none.
func (c *Client) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Messages returns the reconciled sequence for the active conversation.
func (c *Client) Messages() []reconcile.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.messages[c.selected]
	out := make([]reconcile.Message, len(seq))
	copy(out, seq)
	return out
}

// SetCompose replaces the compose buffer.
func (c *Client) SetCompose(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compose = text
}

// Compose returns the compose buffer.
func (c *Client) Compose() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compose
}

// Send delivers the compose buffer to the active conversation. The view
// shows a pending echo immediately; on failure the echo is removed and
// the compose text restored.
func (c *Client) Send(ctx context.Context) error {
	c.mu.Lock()
	chatID := c.selected
	body := c.compose
	c.mu.Unlock()
	return c.sendTo(ctx, chatID, body, true)
}

// SendMessage delivers body to chatID without touching the compose
// buffer. Used by the one-shot CLI send command.
func (c *Client) SendMessage(ctx context.Context, chatID, body string) error {
	return c.sendTo(ctx, chatID, body, false)
}

func (c *Client) sendTo(ctx context.Context, chatID, body string, fromCompose bool) error {
	if strings.TrimSpace(body) == "" {
		return relay.ErrEmptyBody
	}
	if chatID == "" {
		return relay.ErrNoRecipient
	}

	conv, ok := c.conversation(chatID)
	recipient := ""
	if ok && !conv.IsGroup && conv.ChatIdentifier != "" {
		recipient = conv.ChatIdentifier
	}
	sendChatID := chatID
	if recipient != "" {
		sendChatID = ""
	}

	echo := c.echoes.NewEcho(chatID, body, time.Now())
	c.mu.Lock()
	c.messages[chatID] = reconcile.Insert(c.messages[chatID], echo)
	if fromCompose {
		c.compose = ""
	}
	c.mu.Unlock()
	c.mets.EchoesCreated.Inc()

	if err := c.relay.Send(ctx, recipient, sendChatID, body); err != nil {
		c.mets.SendFailures.Inc()
		c.mu.Lock()
		seq, restored, ok := reconcile.Remove(c.messages[chatID], echo.ID)
		if ok {
			c.messages[chatID] = seq
			if fromCompose && c.compose == "" {
				c.compose = restored
			}
		}
		c.mu.Unlock()
		return fmt.Errorf("send to %s: %w", chatID, err)
	}

	c.mets.Sends.Inc()
	c.sched.NotifySent(chatID)
	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.RefreshConversations(refreshCtx); err != nil {
			c.logger.Debug("post-send refresh failed", "error", err)
		}
	}()
	return nil
}

// RefreshConversations reloads the conversation list from the relay.
func (c *Client) RefreshConversations(ctx context.Context) error {
	convs, err := c.relay.ListConversations(ctx)
	if err != nil {
		if errors.Is(err, relay.ErrUnauthenticated) {
			c.expireAuth()
		}
		return fmt.Errorf("refresh conversations: %w", err)
	}
	c.mu.Lock()
	c.conversations = convs
	c.mu.Unlock()
	return nil
}

// Notes exposes the annotation overlay.
func (c *Client) Notes() *notes.Overlay {
	return c.overlay
}

// State exposes the local state store (read markers, buckets).
func (c *Client) State() *state.Store {
	return c.store
}

func (c *Client) conversation(chatID string) (relay.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conv := range c.conversations {
		if conv.ChatID == chatID {
			return conv, true
		}
	}
	return relay.Conversation{}, false
}

// countingFetcher wraps the relay fetch with poll counters.
type countingFetcher struct {
	inner poller.Fetcher
	mets  *metrics.Metrics
}

func (f countingFetcher) GetMessages(ctx context.Context, chatID, lastFingerprint string) (relay.Batch, error) {
	f.mets.Polls.Inc()
	b, err := f.inner.GetMessages(ctx, chatID, lastFingerprint)
	if err != nil && !errors.Is(err, context.Canceled) {
		f.mets.PollErrors.Inc()
	}
	return b, err
}

package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"relaychat/internal/relay"
)

// Defaults for the steady poll cadence and the post-send burst.
const DefaultInterval = 10 * time.Second

// DefaultBurstOffsets confirms a freshly sent message quickly: most
// relays surface it within a few seconds, and the steady tick catches
// anything slower.
var DefaultBurstOffsets = []time.Duration{1 * time.Second, 2500 * time.Millisecond, 5 * time.Second}

// Fetcher performs one change-detected message fetch. Satisfied by
// *relay.Client.
type Fetcher interface {
	GetMessages(ctx context.Context, chatID, lastFingerprint string) (relay.Batch, error)
}

// Sink receives fetch results on the scheduler goroutine.
//
// LastFingerprint supplies the fingerprint to send with the next fetch;
// Apply consumes a successful batch. Both are only ever called from the
// Run goroutine, never concurrently.
type Sink interface {
	LastFingerprint(chatID string) string
	Apply(chatID string, batch relay.Batch, force bool)
}

type cmdKind int

const (
	cmdSelect cmdKind = iota + 1
	cmdDeselect
	cmdSent
	cmdForce
	cmdResult
)

type command struct {
	kind   cmdKind
	chatID string
	force  bool
	batch  relay.Batch
	err    error
}

// Scheduler drives polling for one selected conversation at a time.
//
// All scheduling state (selection, in-flight flag, burst timers) is
// owned by the Run goroutine; the exported methods only enqueue
// commands and are safe from any goroutine.
type Scheduler struct {
	fetcher Fetcher
	sink    Sink
	logger  *slog.Logger

	interval      time.Duration
	burstOffsets  []time.Duration
	onAuthExpired func()

	cmds chan command
	done chan struct{}

	// Run-goroutine state.
	selected string
	inflight bool
	bursts   []*time.Timer
	stopped  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the steady poll cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithBurstOffsets sets the post-send fetch offsets, relative to the
// moment the send was acknowledged.
func WithBurstOffsets(offsets []time.Duration) Option {
	return func(s *Scheduler) { s.burstOffsets = append([]time.Duration(nil), offsets...) }
}

// WithAuthExpired registers a callback invoked (once) when a fetch comes
// back unauthenticated. Polling stops until the next Select.
func WithAuthExpired(fn func()) Option {
	return func(s *Scheduler) { s.onAuthExpired = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler. Run must be called before any fetches happen.
func New(fetcher Fetcher, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:      fetcher,
		sink:         sink,
		logger:       slog.Default(),
		interval:     DefaultInterval,
		burstOffsets: DefaultBurstOffsets,
		cmds:         make(chan command, 64),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select switches polling to chatID: pending burst timers are dropped,
// an immediate forced fetch fires, and the steady cadence restarts.
func (s *Scheduler) Select(chatID string) {
	s.enqueue(command{kind: cmdSelect, chatID: chatID})
}

// Deselect stops polling entirely until the next Select.
func (s *Scheduler) Deselect() {
	s.enqueue(command{kind: cmdDeselect})
}

// NotifySent schedules the post-send burst for chatID. Burst fetches
// only fire while chatID is still the selection.
func (s *Scheduler) NotifySent(chatID string) {
	s.enqueue(command{kind: cmdSent, chatID: chatID})
}

// ForcePoll requests one immediate forced fetch of the current
// selection.
func (s *Scheduler) ForcePoll() {
	s.enqueue(command{kind: cmdForce})
}

func (s *Scheduler) enqueue(cmd command) {
	select {
	case s.cmds <- cmd:
	case <-s.done:
	}
}

// Run owns all scheduling state and blocks until ctx is cancelled.
// Call from exactly one goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.cancelBursts()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, s.selected, false)
		case cmd := <-s.cmds:
			switch cmd.kind {
			case cmdSelect:
				s.cancelBursts()
				s.selected = cmd.chatID
				s.stopped = false
				ticker.Reset(s.interval)
				s.poll(ctx, cmd.chatID, true)
			case cmdDeselect:
				s.cancelBursts()
				s.selected = ""
			case cmdSent:
				s.scheduleBursts(cmd.chatID)
			case cmdForce:
				chatID := cmd.chatID
				if chatID == "" {
					chatID = s.selected
				}
				if chatID != s.selected {
					continue // burst for a conversation no longer shown
				}
				s.poll(ctx, chatID, true)
			case cmdResult:
				s.handleResult(ctx, cmd)
			}
		}
	}
}

// poll launches one fetch off-loop. A trigger that lands while a fetch
// is in flight is skipped: the eventual result carries the same server
// state, and the next tick retries regardless.
func (s *Scheduler) poll(ctx context.Context, chatID string, force bool) {
	if chatID == "" || s.stopped {
		return
	}
	if s.inflight {
		s.logger.Debug("poll skipped, fetch in flight", "chat_id", chatID)
		return
	}
	s.inflight = true
	last := s.sink.LastFingerprint(chatID)
	go func() {
		batch, err := s.fetcher.GetMessages(ctx, chatID, last)
		s.enqueue(command{kind: cmdResult, chatID: chatID, force: force, batch: batch, err: err})
	}()
}

func (s *Scheduler) handleResult(ctx context.Context, cmd command) {
	s.inflight = false
	// Expiry outranks staleness: a 401 means the session is dead for
	// every conversation, not just the one that was being fetched.
	if errors.Is(cmd.err, relay.ErrUnauthenticated) {
		s.logger.Warn("session expired, polling stopped", "chat_id", cmd.chatID)
		s.stopped = true
		s.cancelBursts()
		if s.onAuthExpired != nil {
			s.onAuthExpired()
		}
		return
	}
	if cmd.chatID != s.selected {
		// Selection moved on while the fetch was in flight. The new
		// selection's own fetch was coalesced away, so fire it now.
		s.logger.Debug("discarding stale fetch result", "chat_id", cmd.chatID)
		s.poll(ctx, s.selected, true)
		return
	}
	if cmd.err != nil {
		// Transient failure: keep the cadence, the next tick retries.
		s.logger.Warn("fetch failed", "chat_id", cmd.chatID, "error", cmd.err)
		return
	}
	s.sink.Apply(cmd.chatID, cmd.batch, cmd.force)
}

func (s *Scheduler) scheduleBursts(chatID string) {
	s.cancelBursts()
	for _, offset := range s.burstOffsets {
		s.bursts = append(s.bursts, time.AfterFunc(offset, func() {
			s.enqueue(command{kind: cmdForce, chatID: chatID})
		}))
	}
}

func (s *Scheduler) cancelBursts() {
	for _, t := range s.bursts {
		t.Stop()
	}
	s.bursts = nil
}

package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"relaychat/internal/app"
	"relaychat/internal/config"
	"relaychat/internal/metrics"
	"relaychat/internal/poller"
	"relaychat/internal/relay"
	"relaychat/internal/session"
	"relaychat/internal/state"
)

// env holds everything a command needs after setup.
type env struct {
	cfg     config.Config
	session *session.Session
	relay   *relay.Client
	out     *OutputFormatter
}

// appEnv extends env with the assembled client and its state store.
type appEnv struct {
	env
	client *app.Client
	store  *state.Store
	mets   *metrics.Metrics
}

func (e *appEnv) close() {
	if e.store != nil {
		e.store.Close()
	}
}

// setup loads config and session and builds the relay client. Commands
// that don't poll (login, status, send) stop here.
func setup(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	sess, err := session.Load(cfg.TokenPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load session", err)
	}

	tokenSource := sess.Token
	if cfg.Token != "" {
		// Explicit token override (RELAYCHAT_TOKEN) beats the stored
		// session for scripted use.
		tokenSource = func() string { return cfg.Token }
	}

	return &env{
		cfg:     cfg,
		session: sess,
		relay:   relay.New(cfg.APIBase, relay.WithTokenSource(tokenSource)),
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

// setupApp additionally opens the state store and assembles the client.
// The caller owns close().
func setupApp(cmd *cobra.Command, opts *RootOptions) (*appEnv, error) {
	e, err := setup(cmd, opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(e.cfg.StatePath), 0o700); err != nil {
		return nil, WrapExitError(ExitCommandError, "create state dir", err)
	}
	store, err := state.Open(e.cfg.StatePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open state db", err)
	}

	mets := metrics.New()
	client := app.New(e.relay, store,
		app.WithLogger(slog.Default()),
		app.WithMetrics(mets),
		app.WithRefreshInterval(e.cfg.RefreshInterval.Std()),
		app.WithPollOptions(
			poller.WithInterval(e.cfg.PollInterval.Std()),
			poller.WithBurstOffsets(e.cfg.BurstDurations()),
		),
	)
	return &appEnv{env: *e, client: client, store: store, mets: mets}, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/one-click-apply/internal/backend"
	"github.com/jonathan/one-click-apply/internal/config"
	"github.com/jonathan/one-click-apply/internal/coordinator"
	"github.com/jonathan/one-click-apply/internal/credits"
	"github.com/jonathan/one-click-apply/internal/events"
	"github.com/jonathan/one-click-apply/internal/fetch"
	"github.com/jonathan/one-click-apply/internal/files"
	"github.com/jonathan/one-click-apply/internal/identity"
	"github.com/jonathan/one-click-apply/internal/logging"
	"github.com/jonathan/one-click-apply/internal/questions"
	"github.com/jonathan/one-click-apply/internal/server"
	"github.com/jonathan/one-click-apply/internal/server/ratelimit"
	"github.com/jonathan/one-click-apply/internal/session"
	"github.com/jonathan/one-click-apply/internal/store"
	"github.com/jonathan/one-click-apply/internal/tabdata"
	"github.com/jonathan/one-click-apply/internal/tabs"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator daemon",
		Long:  "Run the long-lived coordinator that the extension shims and the CLI talk to.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, cleanup, err := buildServer(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, overrides the config file")
	return cmd
}

// loadConfig reads the file, applies the environment and validates.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildServer wires every service behind the HTTP API.
func buildServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*server.Server, func(), error) {
	st, err := store.Open(ctx, store.Options{Driver: cfg.Store.Driver, Path: cfg.Store.Path, DSN: cfg.Store.DSN})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	log.Info("store opened", zap.String("driver", cfg.Store.Driver))

	bus := events.NewBus(events.DefaultBuffer)
	data := tabdata.New(st)
	ids := identity.NewProvider(st)
	fm := files.NewManager(st)
	api := backend.New(cfg.BackendURL, backend.WithLogger(log.Named("backend")))

	fetchOpts := fetch.DefaultOptions()
	if cfg.Fetch.Timeout.Duration > 0 {
		fetchOpts.Timeout = cfg.Fetch.Timeout.Duration
	}
	if cfg.Fetch.BrowserTimeout.Duration > 0 {
		fetchOpts.BrowserTimeout = cfg.Fetch.BrowserTimeout.Duration
	}
	if cfg.Fetch.UserAgent != "" {
		fetchOpts.UserAgent = cfg.Fetch.UserAgent
	}
	fetchOpts.UseBrowser = cfg.Fetch.UseBrowser
	loader := fetch.NewLoader(fetchOpts, fetch.ChromeRenderer{UserAgent: fetchOpts.UserAgent}, log.Named("fetch"))

	coord := coordinator.New(tabs.NewRegistry(), tabs.NewPanels(), data, loader, bus, log.Named("coordinator"))
	if err := coord.HandleEvent(ctx, coordinator.Event{Kind: coordinator.EventStartup}); err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	cr := credits.NewService(credits.Config{Mode: credits.Mode(cfg.Credits.Mode), LocalAllowance: cfg.Credits.LocalAllowance}, api, data, ids, bus)
	runner := session.NewRunner(session.Config{
		JobSource:  session.JobSource(cfg.Generation.JobSource),
		FullResume: cfg.Generation.FullResume,
	}, session.Deps{
		Backend:  api,
		Host:     coord,
		Credits:  cr,
		Files:    fm,
		Identity: ids,
		Results:  data,
		Tracker:  session.NewTracker(bus),
		Log:      log.Named("session"),
	})

	deps := server.Deps{
		Coordinator: coord,
		Sessions:    runner,
		Questions:   questions.NewService(api, data, fm, ids, log.Named("questions"), questions.WithTabGuard(coord)),
		Files:       fm,
		Credits:     cr,
		Identity:    ids,
		Data:        data,
		Bus:         bus,
		Limiter:     ratelimit.NewLimiter(ratelimit.FromConfig(cfg.RateLimit)),
		Log:         log.Named("http"),
	}
	deps.AllowedOrigins = cfg.AllowedOrigins
	// A nil *TokenService must not become a non-nil interface.
	if tokens := server.NewTokenService(cfg.External); tokens != nil {
		deps.Tokens = tokens
	}

	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	}
	return server.New(cfg.Listen, deps), cleanup, nil
}

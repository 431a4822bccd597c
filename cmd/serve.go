package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/artifacts"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/auth"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/browser"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/config"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/events"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/httpapi"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/session"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store/sqldb"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/tools"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config.load_failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.Auth.Secret == "" {
		slog.Error("CODESK_AUTH_SECRET is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.Endpoint)
	if err != nil {
		slog.Error("tracing.setup_failed", "error", err)
		os.Exit(1)
	}

	db, err := sqldb.Open(cfg.Database.PostgresDSN, cfg.Database.SQLitePath)
	if err != nil {
		slog.Error("db.open_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		slog.Error("db.ping_failed", "error", err)
		os.Exit(1)
	}
	slog.Info("db.connected", "backend", db.Backend())

	sessions, err := session.NewManager(db, cfg.Sessions.MaxSessions, cfg.Sessions.TTL, cfg.Sessions.MaxSessionMessages)
	if err != nil {
		slog.Error("sessions.init_failed", "error", err)
		os.Exit(1)
	}

	art, err := artifacts.New(cfg.Outputs.Dir, db)
	if err != nil {
		slog.Error("artifacts.init_failed", "error", err)
		os.Exit(1)
	}

	browsers := browser.NewManager()
	defer browsers.Close()

	srv := httpapi.NewServer(httpapi.Deps{
		Config:    cfg,
		DB:        db,
		Sessions:  sessions,
		Artifacts: art,
		Tokens:    artifacts.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.DownloadTokenTTL),
		Registry:  tools.NewRegistry(),
		Providers: buildProviders(cfg),
		Browser:   browsers,
		Hub:       events.NewHub(),
		Auth:      auth.NewJWTResolver(cfg.Auth.Secret, db),
	})

	if err := config.Watch(ctx, cfgPath, srv.Reload); err != nil {
		slog.Warn("config.watch_unavailable", "error", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server.listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		artifacts.NewGC(art, cfg.Outputs.TTL, cfg.Outputs.GCSchedule).Run(gctx)
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server.stopped", "error", err)
	}
	if err := shutdownTracing(context.Background()); err != nil {
		slog.Warn("tracing.shutdown_failed", "error", err)
	}
}

// buildProviders registers every adapter the config names. The mock
// provider is only available when explicitly selected as the default.
func buildProviders(cfg *config.Config) *providers.Registry {
	reg := providers.NewRegistry(cfg.Provider.Default)

	if cfg.Provider.APIKey != "" {
		reg.Register(providers.NewNative(cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.Model, cfg.Provider.CallTimeout))
	}
	if cfg.Provider.CodexCommand != "" {
		reg.Register(providers.NewCodex(cfg.Provider.CodexCommand, cfg.Provider.SubprocessTimeout))
	}
	if cfg.Provider.PiCommand != "" {
		reg.Register(providers.NewPi(cfg.Provider.PiCommand, cfg.Provider.SubprocessTimeout))
	}
	if cfg.Provider.NanobotCommand != "" {
		reg.Register(providers.NewNanobot(cfg.Provider.NanobotCommand, cfg.Provider.SubprocessTimeout))
	}
	if cfg.Provider.OpencodeBaseURL != "" {
		reg.Register(providers.NewOpencode(cfg.Provider.OpencodeBaseURL, cfg.Provider.OpencodeTimeout))
	}
	if cfg.Provider.Default == "mock" {
		reg.Register(&providers.Mock{})
	}

	slog.Info("providers.registered", "names", reg.Names(), "default", cfg.Provider.Default)
	return reg
}

package main

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

	"github.com/spf13/pflag"

	"github.com/me/wftemplates/internal/config"
	"github.com/me/wftemplates/internal/logging"
	"github.com/me/wftemplates/internal/metrics"
	"github.com/me/wftemplates/internal/server"
	"github.com/me/wftemplates/internal/service"
	"github.com/me/wftemplates/internal/store"
)

func main() {
	fs := pflag.NewFlagSet("wfrepo-server", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, fs); err != nil {
		fmt.Fprintf(os.Stderr, "wfrepo-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, fs *pflag.FlagSet) error {
	configFile, _ := fs.GetString("config")
	remoteConfig, _ := fs.GetString("remote-config")

	cfg, err := config.Load(ctx, config.LoadOptions{
		File:    configFile,
		Remote:  remoteConfig,
		Fetcher: service.NewFetcher(config.Default().Fetch),
		Flags:   fs,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	logger, logFile, err := logging.New(logging.Options{Level: level, Format: cfg.Log.Format, Dir: cfg.Log.Dir})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "sources", cfg.Sources, "base_url", cfg.BaseURL())

	st, err := store.NewSQLiteStore(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready", "path", cfg.Store.Path)

	m := metrics.New()
	svc, err := service.New(ctx, cfg,
		service.WithLogger(logger),
		service.WithStore(st),
		service.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	if _, err := svc.Start(ctx); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	srv := server.New(cfg, svc.Repository(), logger,
		server.WithStore(st),
		server.WithMetrics(m.Handler()),
	)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go reloadOnHangup(ctx, svc, logger)

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr, "templates", svc.Repository().Len())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// reloadOnHangup reloads the listing on every SIGHUP until ctx is done.
// A failed reload keeps the templates currently served.
func reloadOnHangup(ctx context.Context, svc *service.Service, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info("reloading templates")
			if run, err := svc.Reload(ctx); err != nil {
				logger.Error("reload failed", "run", run.ID, "error", err)
			}
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/phyn2-2/medasset-sentinel/docs"
	"github.com/phyn2-2/medasset-sentinel/internal/config"
	"github.com/phyn2-2/medasset-sentinel/internal/handlers"
	"github.com/phyn2-2/medasset-sentinel/internal/logger"
	"github.com/phyn2-2/medasset-sentinel/internal/server"
	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/spf13/cobra"
)

// @title                       MedAsset Sentinel API
// @version                     1.0
// @description                 Maintenance scheduling, telemetry and alerting for medical equipment.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "sentinel",
		Short:        "MedAsset Sentinel maintenance and alerting engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default configs/config.yml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.RunE = serve.RunE

	root.AddCommand(
		serve,
		newJobCmd("sweep", "Run one maintenance sweep and print its report", &configPath,
			func(ctx context.Context, s *service.Service) (service.RunReport, error) { return s.TriggerSweepNow(ctx) }),
		newJobCmd("tick", "Run one telemetry tick and print its report", &configPath,
			func(ctx context.Context, s *service.Service) (service.RunReport, error) { return s.TriggerTickNow(ctx) }),
		newOperatorCmd(&configPath),
	)
	return root
}

// withApp opens the configured database for a one-shot command.
func withApp(configPath string, fn func(a *app) error) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	log := logger.Get(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

type jobFunc func(ctx context.Context, s *service.Service) (service.RunReport, error)

// newJobCmd runs a single job against the configured database and exits.
func newJobCmd(use, short string, configPath *string, run jobFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app) error {
				rep, err := run(cmd.Context(), a.services)
				if err != nil {
					return fmt.Errorf("%s: %w", use, err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			})
		},
	}
}

// newOperatorCmd enables or disables operator sign-in. Disabling also
// invalidates tokens the operator already holds.
func newOperatorCmd(configPath *string) *cobra.Command {
	op := &cobra.Command{
		Use:   "operator",
		Short: "Manage operator accounts",
	}
	for _, active := range []bool{true, false} {
		use, short := "enable", "Allow an operator to sign in again"
		if !active {
			use, short = "disable", "Lock an operator out and revoke their tokens"
		}
		op.AddCommand(&cobra.Command{
			Use:   use + " <username>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(*configPath, func(a *app) error {
					if err := a.services.SetOperatorActive(cmd.Context(), args[0], active); err != nil {
						return fmt.Errorf("%s %s: %w", use, args[0], err)
					}
					a.log.Infow("operator_updated", "username", args[0], "active", active)
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "operator %s %sd\n", args[0], use)
					return err
				})
			},
		})
	}
	return op
}

func runServe(parent context.Context, configPath string) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if cfg.Auth.SigningKey == "" {
		return errors.New("auth.signing_key is required to serve (set SENTINEL_AUTH_SIGNING_KEY)")
	}

	log := logger.Get(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()
	log.Infow("config_loaded", "file", loader.File())

	a, err := newApp(cfg, log)
	if err != nil {
		log.Errorw("failed to init app", "err", err)
		return err
	}
	defer a.close()

	loader.Watch(a.reload, a.reloadFailed)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if cfg.Scheduler.Enabled {
		if err := a.services.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		log.Infow("scheduler disabled; jobs run only on demand")
	}

	apiHandler := handlers.NewHandler(a.services, log.Component("http"))
	apiHandler.SetStreamIntervals(cfg.WebSocket.DefaultInterval, cfg.WebSocket.MinInterval)

	srv := &server.Server{}
	errCh := runHTTPServer(srv, cfg, apiHandler, log)

	return waitForShutdown(cancel, errCh, srv, a.services.Scheduler, cfg, log)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, cfg *config.Config, handler *handlers.Handler, log *logger.Logger) <-chan error {
	errCh := make(chan error, 1)
	timeouts := server.Timeouts{
		ReadHeader: cfg.HTTP.ReadHeaderTimeout,
		Write:      cfg.HTTP.WriteTimeout,
		Idle:       cfg.HTTP.IdleTimeout,
	}
	go func() {
		log.Infow("http server listening", "port", cfg.Port)
		if err := srv.Run(cfg.Port, handler.InitRoutes(), timeouts); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// waitForShutdown blocks until a termination signal or a server failure, then
// stops the scheduler and drains the HTTP server.
func waitForShutdown(cancel context.CancelFunc, errCh <-chan error, srv *server.Server, sched *service.Scheduler, cfg *config.Config, log *logger.Logger) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		log.Infow("shutting down server...", "signal", sig.String())
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Errorw("error running server", "err", err)
			runErr = err
		}
	}

	ctx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	// stop producing work before the listener goes away
	if err := sched.Stop(ctx); err != nil {
		log.Errorw("scheduler did not drain", "err", err)
	}
	cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
		return errors.Join(runErr, err)
	}
	return runErr
}

package main

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/phyn2-2/medasset-sentinel/internal/config"
	"github.com/phyn2-2/medasset-sentinel/internal/logger"
	"github.com/phyn2-2/medasset-sentinel/internal/metrics"
	"github.com/phyn2-2/medasset-sentinel/internal/repository"
	"github.com/phyn2-2/medasset-sentinel/internal/repository/db"
	"github.com/phyn2-2/medasset-sentinel/internal/service"
)

// app holds what both serve and the one-shot job commands need.
type app struct {
	db       *sql.DB
	services *service.Service
	log      *logger.Logger
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("init sqlite %s: %w", cfg.DB.Path, err)
	}

	services := service.NewService(service.Deps{
		Store:      repository.NewSQLStore(conn),
		Thresholds: thresholdsFrom(cfg),
		Profiles:   profilesFrom(cfg),
		Seed:       cfg.Telemetry.Seed,
		Scheduler:  schedulerOptionsFrom(cfg),
		Policy:     policyFrom(cfg),
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
		Log:        log,
	})
	return &app{db: conn, services: services, log: log}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Errorw("failed to close sqlite", "err", err)
	}
}

// reload applies the hot-reloadable parts of cfg. Storage, port and
// scheduler cadence need a restart.
func (a *app) reload(cfg *config.Config) {
	a.services.Evaluator.SetThresholds(thresholdsFrom(cfg))
	a.services.Simulator.SetProfiles(profilesFrom(cfg))
	a.services.Scheduler.SetPolicy(policyFrom(cfg))
	metrics.ConfigReloadsTotal.WithLabelValues("ok").Inc()
	a.log.Infow("config_reloaded",
		"thresholds", len(cfg.Telemetry.Thresholds),
		"profiles", len(cfg.Telemetry.Profiles),
		"auto_resolve_failures", cfg.Alerts.AutoResolveFailures,
		"upcoming_window", cfg.Alerts.UpcomingWindow.String(),
	)
}

func (a *app) reloadFailed(err error) {
	metrics.ConfigReloadsTotal.WithLabelValues("error").Inc()
	a.log.Errorw("config_reload_rejected", "err", err)
}

func thresholdsFrom(cfg *config.Config) service.Thresholds {
	out := make(service.Thresholds, len(cfg.Telemetry.Thresholds))
	for metric, th := range cfg.Telemetry.Thresholds {
		out[strings.ToLower(strings.TrimSpace(metric))] = service.Threshold{Min: th.Min, Max: th.Max}
	}
	return out
}

func profilesFrom(cfg *config.Config) map[string]service.Profile {
	out := make(map[string]service.Profile, len(cfg.Telemetry.Profiles))
	for category, p := range cfg.Telemetry.Profiles {
		out[strings.ToLower(strings.TrimSpace(category))] = service.Profile{
			Metric:               p.Metric,
			Baseline:             p.Baseline,
			Noise:                p.Noise,
			ExcursionProbability: p.ExcursionProbability,
			ExcursionMagnitude:   p.ExcursionMagnitude,
		}
	}
	return out
}

func schedulerOptionsFrom(cfg *config.Config) service.SchedulerOptions {
	return service.SchedulerOptions{
		SweepInterval: cfg.Scheduler.SweepInterval,
		TickInterval:  cfg.Scheduler.TickInterval,
		UnitTimeout:   cfg.Scheduler.UnitTimeout,
		Workers:       cfg.Scheduler.Workers,
		SweepOnStart:  cfg.Scheduler.SweepOnStart,
	}
}

func policyFrom(cfg *config.Config) service.AlertPolicy {
	return service.AlertPolicy{
		AutoResolveFailures: cfg.Alerts.AutoResolveFailures,
		UpcomingWindow:      cfg.Alerts.UpcomingWindow,
	}
}

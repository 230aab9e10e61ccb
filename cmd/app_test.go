package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/config"
	"github.com/phyn2-2/medasset-sentinel/internal/logger"
	"github.com/phyn2-2/medasset-sentinel/internal/metrics"
	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/service"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(testConfigFile(t))
	require.NoError(t, err)
	return cfg
}

// testConfigFile writes a config pointing at a fresh database and returns its path.
func testConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	body := "db:\n  path: " + filepath.Join(t.TempDir(), "sentinel.db") + `
auth:
  signing_key: test
telemetry:
  thresholds:
    SpO2_Accuracy: { min: 96 }
  profiles:
    Patient_Monitor:
      metric: spo2_accuracy
      baseline: 100
      noise: 1
alerts:
  auto_resolve_failures: true
  upcoming_window: 72h
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConversionsFromConfig(t *testing.T) {
	cfg := testConfig(t)

	th := thresholdsFrom(cfg)
	require.Contains(t, th, "spo2_accuracy")
	require.NotNil(t, th["spo2_accuracy"].Min)
	assert.Equal(t, 96.0, *th["spo2_accuracy"].Min)
	assert.Nil(t, th["spo2_accuracy"].Max)

	profiles := profilesFrom(cfg)
	assert.Contains(t, profiles, service.DefaultProfile)
	assert.Equal(t, "spo2_accuracy", profiles["patient_monitor"].Metric)

	opts := schedulerOptionsFrom(cfg)
	assert.Equal(t, 4, opts.Workers)
	assert.True(t, opts.SweepOnStart)

	assert.Equal(t, service.AlertPolicy{AutoResolveFailures: true, UpcomingWindow: 72 * time.Hour}, policyFrom(cfg))
}

func TestApp_OneShotJobAndReload(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.close)
	t.Cleanup(func() { _ = a.services.Scheduler.Stop(context.Background()) })

	rep, err := a.services.TriggerSweepNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sweep", rep.Job)
	assert.Zero(t, rep.Equipment)

	before := testutil.ToFloat64(metrics.ConfigReloadsTotal.WithLabelValues("ok"))
	cfg.Alerts.UpcomingWindow = 24 * time.Hour
	cfg.Telemetry.Thresholds["battery_pct"] = config.Threshold{Min: ptr(20.0)}
	a.reload(cfg)

	assert.Equal(t, 24*time.Hour, a.services.Scheduler.Policy().UpcomingWindow)
	assert.Contains(t, a.services.Evaluator.Thresholds(), "battery_pct")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ConfigReloadsTotal.WithLabelValues("ok")))

	failedBefore := testutil.ToFloat64(metrics.ConfigReloadsTotal.WithLabelValues("error"))
	a.reloadFailed(assert.AnError)
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(metrics.ConfigReloadsTotal.WithLabelValues("error")))
}

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "sweep", "tick", "operator"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.RunE, "bare invocation serves")
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestOperatorCmd_DisableAndEnable(t *testing.T) {
	path := testConfigFile(t)
	ctx := context.Background()

	// signIn opens its own app so every check reads what the command committed.
	signIn := func() error {
		cfg, err := config.Load(path)
		require.NoError(t, err)
		a, err := newApp(cfg, logger.Nop())
		require.NoError(t, err)
		defer a.close()
		_, err = a.services.GenerateToken(ctx, "biomed.admin", "autoclave-42")
		return err
	}
	run := func(args ...string) (string, error) {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(io.Discard)
		root.SetArgs(append([]string{"-c", path}, args...))
		err := root.Execute()
		return out.String(), err
	}

	cfg, err := config.Load(path)
	require.NoError(t, err)
	a, err := newApp(cfg, logger.Nop())
	require.NoError(t, err)
	_, err = a.services.SignUp(ctx, "biomed.admin", "autoclave-42")
	require.NoError(t, err)
	a.close()

	out, err := run("operator", "disable", "biomed.admin")
	require.NoError(t, err)
	assert.Equal(t, "operator biomed.admin disabled\n", out)
	assert.ErrorIs(t, signIn(), service.ErrUserInactive)

	out, err = run("operator", "enable", "biomed.admin")
	require.NoError(t, err)
	assert.Equal(t, "operator biomed.admin enabled\n", out)
	assert.NoError(t, signIn())

	_, err = run("operator", "disable", "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = run("operator", "disable")
	assert.Error(t, err, "username is required")
}

func ptr(v float64) *float64 { return &v }

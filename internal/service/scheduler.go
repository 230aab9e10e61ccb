package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/logger"
	"github.com/phyn2-2/medasset-sentinel/internal/metrics"
	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/repository"

	"golang.org/x/sync/errgroup"
)

// ErrSchedulerStopped is returned by runs requested after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

type SchedulerOptions struct {
	SweepInterval time.Duration
	TickInterval  time.Duration
	UnitTimeout   time.Duration
	Workers       int
	// SweepOnStart runs one sweep as soon as Start is called.
	SweepOnStart bool
}

const (
	defaultSweepInterval = 24 * time.Hour
	defaultTickInterval  = 30 * time.Second
	defaultUnitTimeout   = 5 * time.Second
	defaultWorkers       = 4
)

func (o SchedulerOptions) withDefaults() SchedulerOptions {
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepInterval
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.UnitTimeout <= 0 {
		o.UnitTimeout = defaultUnitTimeout
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	return o
}

// AlertPolicy holds the alerting knobs that can change at runtime.
type AlertPolicy struct {
	// AutoResolveFailures lets a nominal reading clear FAILED and resolve the
	// open failure alert. Off means only a human can return equipment to service.
	AutoResolveFailures bool
	// UpcomingWindow > 0 makes the sweep raise MAINTENANCE_UPCOMING ahead of time.
	UpcomingWindow time.Duration
}

// UnitFailure names one equipment whose unit did not complete.
type UnitFailure struct {
	EquipmentID string `json:"equipment_id"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error"`
}

// RunReport summarizes one sweep or tick.
type RunReport struct {
	Job              string        `json:"job"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Equipment        int           `json:"equipment"`
	Evaluated        int           `json:"evaluated"`
	AlertsRaised     int           `json:"alerts_raised"`
	AlertsSuppressed int           `json:"alerts_suppressed"`
	AlertsResolved   int           `json:"alerts_resolved"`
	StatusChanges    int           `json:"status_changes"`
	UnitsFailed      int           `json:"units_failed"`
	UnitsSkipped     int           `json:"units_skipped"`
	Aborted          bool          `json:"aborted"`
	Failures         []UnitFailure `json:"failures,omitempty"`
}

// unitResult is what one per-equipment unit contributed.
type unitResult struct {
	raised, suppressed, resolved int
	statusChanged                bool
}

// Scheduler owns the two periodic jobs. It has an explicit Start/Stop
// lifecycle and no package-level state.
type Scheduler struct {
	store repository.Store
	eval  *Evaluator
	sim   *Simulator
	locks *keyedMutex
	now   func() time.Time
	log   *logger.Logger
	opts  SchedulerOptions

	policy atomic.Pointer[AlertPolicy]

	// one slot per job: runs of the same job never overlap
	sweepSlot chan struct{}
	tickSlot  chan struct{}

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopCh   chan struct{}
	cancel   context.CancelFunc
	loops    sync.WaitGroup
	inflight sync.WaitGroup
}

func NewScheduler(store repository.Store, eval *Evaluator, sim *Simulator, locks *keyedMutex, now func() time.Time, opts SchedulerOptions, policy AlertPolicy, log *logger.Logger) *Scheduler {
	s := &Scheduler{
		store:     store,
		eval:      eval,
		sim:       sim,
		locks:     locks,
		now:       now,
		log:       log,
		opts:      opts.withDefaults(),
		sweepSlot: make(chan struct{}, 1),
		tickSlot:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	s.SetPolicy(policy)
	return s
}

// SetPolicy swaps the alert policy; used on config reload.
func (s *Scheduler) SetPolicy(p AlertPolicy) {
	s.policy.Store(&p)
}

func (s *Scheduler) Policy() AlertPolicy {
	return *s.policy.Load()
}

// Start launches the sweep and tick loops. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.loops.Add(2)
	go s.loop(loopCtx, metrics.JobSweep, s.opts.SweepInterval, s.opts.SweepOnStart, s.TriggerSweepNow)
	go s.loop(loopCtx, metrics.JobTick, s.opts.TickInterval, false, s.TriggerTickNow)

	s.log.Infow("scheduler_started",
		"sweep_interval", s.opts.SweepInterval.String(),
		"tick_interval", s.opts.TickInterval.String(),
		"workers", s.opts.Workers,
	)
	return nil
}

// Stop prevents new units from starting, cancels the loops and waits for
// in-flight units to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Infow("scheduler_stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// loop runs job every interval until ctx is done.
func (s *Scheduler) loop(ctx context.Context, job string, every time.Duration, immediate bool, run func(context.Context) (RunReport, error)) {
	defer s.loops.Done()

	if immediate {
		s.runLogged(ctx, job, run)
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.runLogged(ctx, job, run)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context, job string, run func(context.Context) (RunReport, error)) {
	if _, err := run(ctx); err != nil && !errors.Is(err, ErrSchedulerStopped) && ctx.Err() == nil {
		s.log.Errorw("job_run_failed", "job", job, "err", err)
	}
}

// TriggerSweepNow runs one maintenance sweep and waits for it.
func (s *Scheduler) TriggerSweepNow(ctx context.Context) (RunReport, error) {
	return s.run(ctx, metrics.JobSweep, s.sweepSlot, s.sweepUnit)
}

// TriggerTickNow runs one telemetry tick and waits for it.
func (s *Scheduler) TriggerTickNow(ctx context.Context) (RunReport, error) {
	return s.run(ctx, metrics.JobTick, s.tickSlot, s.tickUnit)
}

type unitFunc func(ctx context.Context, eq models.Equipment, now time.Time) (unitResult, error)

func (s *Scheduler) run(ctx context.Context, job string, slot chan struct{}, unit unitFunc) (RunReport, error) {
	if err := s.begin(); err != nil {
		return RunReport{}, err
	}
	defer s.inflight.Done()

	select {
	case slot <- struct{}{}:
		defer func() { <-slot }()
	case <-ctx.Done():
		return RunReport{}, fmt.Errorf("%s: wait for previous run: %w", job, ctx.Err())
	case <-s.stopCh:
		return RunReport{}, ErrSchedulerStopped
	}

	rep := RunReport{Job: job, StartedAt: s.now()}
	active := true
	list, err := s.store.Repos().Equipment.List(ctx, repository.EquipmentFilter{Active: &active})
	if err != nil {
		return rep, fmt.Errorf("%s: list equipment: %w", job, err)
	}
	rep.Equipment = len(list)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.opts.Workers)
	for _, eq := range list {
		if s.halted(ctx) {
			mu.Lock()
			rep.Aborted = true
			mu.Unlock()
			break
		}
		g.Go(func() error {
			// re-check: the slot may have been granted after Stop
			if s.halted(ctx) {
				mu.Lock()
				rep.Aborted = true
				mu.Unlock()
				return nil
			}
			res, outcome, err := s.runUnit(ctx, job, eq, unit)

			mu.Lock()
			defer mu.Unlock()
			rep.add(eq.ID, res, outcome, err)
			return nil
		})
	}
	_ = g.Wait()

	rep.FinishedAt = s.now()
	metrics.JobRunsTotal.WithLabelValues(job).Inc()
	metrics.JobDuration.WithLabelValues(job).Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
	s.log.Infow(job+"_completed",
		"equipment", rep.Equipment,
		"evaluated", rep.Evaluated,
		"alerts_raised", rep.AlertsRaised,
		"alerts_suppressed", rep.AlertsSuppressed,
		"units_failed", rep.UnitsFailed,
		"units_skipped", rep.UnitsSkipped,
		"aborted", rep.Aborted,
	)
	return rep, nil
}

func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	s.inflight.Add(1)
	return nil
}

func (s *Scheduler) halted(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// runUnit isolates one equipment: its context survives shutdown until the
// unit timeout, panics are contained, and the error is classified.
func (s *Scheduler) runUnit(parent context.Context, job string, eq models.Equipment, unit unitFunc) (res unitResult, outcome string, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.opts.UnitTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit panic: %v", r)
			outcome = metrics.OutcomeFailed
		}
		metrics.UnitsTotal.WithLabelValues(job, outcome).Inc()
		switch outcome {
		case metrics.OutcomeFailed:
			s.log.Errorw(job+"_unit_failed", "equipment_id", eq.ID, "err", err)
		case metrics.OutcomeSkipped:
			s.log.Warnw(job+"_unit_skipped", "equipment_id", eq.ID, "err", err)
		}
	}()

	res, err = unit(ctx, eq, s.now())
	return res, classifyUnit(err), err
}

// classifyUnit: a timeout is a failed unit; a transient store error or an
// equipment that vanished mid-run is skipped and retried next cycle.
func classifyUnit(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeFailed
	case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, models.ErrNotFound):
		return metrics.OutcomeSkipped
	default:
		return metrics.OutcomeFailed
	}
}

func (r *RunReport) add(equipmentID string, res unitResult, outcome string, err error) {
	switch outcome {
	case metrics.OutcomeOK:
		r.Evaluated++
		r.AlertsRaised += res.raised
		r.AlertsSuppressed += res.suppressed
		r.AlertsResolved += res.resolved
		if res.statusChanged {
			r.StatusChanges++
		}
		return
	case metrics.OutcomeSkipped:
		r.UnitsSkipped++
	case metrics.OutcomeFailed:
		r.UnitsFailed++
	}
	r.Failures = append(r.Failures, UnitFailure{EquipmentID: equipmentID, Outcome: outcome, Error: err.Error()})
}

// sweepUnit raises MAINTENANCE_OVERDUE for due equipment, and
// MAINTENANCE_UPCOMING inside the configured window. It never resolves.
func (s *Scheduler) sweepUnit(ctx context.Context, listed models.Equipment, now time.Time) (unitResult, error) {
	unlock, err := s.locks.Lock(ctx, listed.ID)
	if err != nil {
		return unitResult{}, err
	}
	defer unlock()

	policy := s.Policy()
	var (
		res    unitResult
		raised *raisedAlert
	)
	err = s.store.InTx(ctx, func(r *repository.Repository) error {
		eq, err := r.Equipment.Get(ctx, listed.ID)
		if err != nil {
			return err
		}
		if !eq.Active {
			return nil
		}

		var kind models.AlertKind
		switch {
		case MaintenanceDue(eq, now):
			kind = models.KindMaintenanceOverdue
		case MaintenanceUpcoming(eq, now, policy.UpcomingWindow):
			kind = models.KindMaintenanceUpcoming
		default:
			return nil
		}

		a, created, err := raiseTx(ctx, r, eq, kind, "", now)
		if err != nil {
			return err
		}
		res.add(created)
		raised = &raisedAlert{alert: a, created: created}
		return nil
	})
	if err != nil {
		return unitResult{}, err
	}
	s.observeRaise(raised)
	return res, nil
}

// tickUnit samples, persists and evaluates one reading. A FAILED result
// marks the equipment and raises EQUIPMENT_FAILURE; a nominal one clears
// nothing unless the auto-resolve policy is on.
func (s *Scheduler) tickUnit(ctx context.Context, listed models.Equipment, now time.Time) (unitResult, error) {
	reading, err := s.sim.Sample(ctx, listed)
	if err != nil {
		return unitResult{}, err
	}

	unlock, err := s.locks.Lock(ctx, listed.ID)
	if err != nil {
		return unitResult{}, err
	}
	defer unlock()

	policy := s.Policy()
	var (
		res    unitResult
		raised *raisedAlert
	)
	err = s.store.InTx(ctx, func(r *repository.Repository) error {
		eq, err := r.Equipment.Get(ctx, listed.ID)
		if err != nil {
			return err
		}
		if !eq.Active {
			return nil
		}

		ev, err := s.eval.Evaluate(eq, reading, now)
		if err != nil {
			return err
		}
		if err := r.SensorEvents.Append(ctx, reading); err != nil {
			return err
		}

		switch ev.Status {
		case models.StatusFailed:
			if eq.OperationalStatus != models.StatusFailed {
				if err := r.Equipment.UpdateStatus(ctx, eq.ID, models.StatusFailed, now); err != nil {
					return err
				}
				res.statusChanged = true
			}
			detail := ""
			if ev.Breach != nil {
				detail = ev.Breach.String()
			}
			a, created, err := raiseTx(ctx, r, eq, models.KindEquipmentFailure, detail, now)
			if err != nil {
				return err
			}
			res.add(created)
			raised = &raisedAlert{alert: a, created: created}
		case models.StatusOperational:
			if !policy.AutoResolveFailures || eq.OperationalStatus != models.StatusFailed {
				return nil
			}
			if err := r.Equipment.UpdateStatus(ctx, eq.ID, models.StatusOperational, now); err != nil {
				return err
			}
			res.statusChanged = true
			resolved, err := resolveActiveTx(ctx, r, eq.ID, []models.AlertKind{models.KindEquipmentFailure},
				"auto-resolved after nominal reading "+reading.ID, now)
			if err != nil {
				return err
			}
			res.resolved = len(resolved)
		case models.StatusUnderMaintenance:
		}
		return nil
	})
	if err != nil {
		return unitResult{}, err
	}

	metrics.SensorEventsTotal.WithLabelValues(reading.Metric).Inc()
	for i := 0; i < res.resolved; i++ {
		metrics.AlertTransitionsTotal.WithLabelValues(string(models.AlertResolved)).Inc()
	}
	if res.statusChanged {
		s.log.Infow("status_changed", "equipment_id", listed.ID, "metric", reading.Metric, "value", reading.Value)
	}
	s.observeRaise(raised)
	return res, nil
}

func (r *unitResult) add(created bool) {
	if created {
		r.raised++
	} else {
		r.suppressed++
	}
}

type raisedAlert struct {
	alert   models.Alert
	created bool
}

func (s *Scheduler) observeRaise(r *raisedAlert) {
	if r == nil {
		return
	}
	a := r.alert
	if !r.created {
		metrics.AlertsSuppressedTotal.WithLabelValues(string(a.Kind)).Inc()
		return
	}
	metrics.AlertsRaisedTotal.WithLabelValues(string(a.Kind)).Inc()
	s.log.Infow("alert_raised", "alert_id", a.ID, "equipment_id", a.EquipmentRef(), "kind", a.Kind, "severity", a.Severity)
}

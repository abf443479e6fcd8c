// Package scheduler drives the periodic work: per-strategy scans, session
// timeout confirmation, and idle alert closure. It also reacts to strategy
// snapshot changes, finalizing session alerts whose strategy went away.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/recovery"
	"github.com/sgerhart/alertflux/internal/scan"
	"github.com/sgerhart/alertflux/internal/store"
	"github.com/sgerhart/alertflux/internal/strategy"
	"github.com/sgerhart/alertflux/internal/window"
)

var (
	// ErrUnknownStrategy is returned by manual scans of rule ids not in the
	// current snapshot.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrScanInFlight is returned when a manual scan targets a strategy
	// whose previous scan has not finished.
	ErrScanInFlight = errors.New("scan already in flight")
)

// Config holds the scheduler cadences. Zero values take the defaults.
type Config struct {
	ScanInterval    time.Duration
	TimeoutInterval time.Duration
	IdleInterval    time.Duration
}

const (
	defaultScanInterval    = time.Minute
	defaultTimeoutInterval = 5 * time.Minute
	defaultIdleInterval    = 5 * time.Minute
)

// Scheduler owns the tick loop. Scans of distinct strategies run
// concurrently; scans of the same strategy are single-flight, so a slow scan
// makes the next tick skip that strategy instead of racing it.
type Scheduler struct {
	loader    *strategy.Loader
	processor *scan.Processor
	timeouts  *recovery.TimeoutChecker
	idle      *recovery.IdleCloser
	store     store.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config

	mu       sync.Mutex
	inFlight map[int64]bool

	// prev is the last snapshot seen, owned by the Run goroutine and used
	// to detect strategies that vanished or stopped using session windows.
	prev *strategy.Snapshot
}

// NewScheduler creates a Scheduler. m may be nil.
func NewScheduler(loader *strategy.Loader, processor *scan.Processor, st store.Store, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	if cfg.TimeoutInterval <= 0 {
		cfg.TimeoutInterval = defaultTimeoutInterval
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = defaultIdleInterval
	}
	return &Scheduler{
		loader:    loader,
		processor: processor,
		timeouts:  recovery.NewTimeoutChecker(st, m, logger),
		idle:      recovery.NewIdleCloser(st, m, logger),
		store:     st,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		inFlight:  make(map[int64]bool),
	}
}

// Run ticks until the context is cancelled. Scans spawned by a tick may
// outlive the loop briefly; callers bound that with their shutdown timeout.
func (s *Scheduler) Run(ctx context.Context) {
	changes := s.loader.Subscribe()

	scanTicker := time.NewTicker(s.cfg.ScanInterval)
	defer scanTicker.Stop()
	timeoutTicker := time.NewTicker(s.cfg.TimeoutInterval)
	defer timeoutTicker.Stop()
	idleTicker := time.NewTicker(s.cfg.IdleInterval)
	defer idleTicker.Stop()

	s.logger.Info("Scheduler started",
		"scan_interval", s.cfg.ScanInterval,
		"timeout_interval", s.cfg.TimeoutInterval,
		"idle_interval", s.cfg.IdleInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-changes:
			s.handleSnapshotChange()
		case now := <-scanTicker.C:
			s.scanAll(now.UTC())
		case <-timeoutTicker.C:
			s.runTimeoutPass()
		case <-idleTicker.C:
			s.runIdlePass()
		}
	}
}

// ScanStrategy runs one strategy's scan synchronously. Used by the manual
// trigger endpoint.
func (s *Scheduler) ScanStrategy(ruleID int64) error {
	snapshot := s.loader.GetSnapshot()
	st, ok := snapshot.Find(ruleID)
	if !ok {
		return ErrUnknownStrategy
	}
	if !s.tryBegin(ruleID) {
		return ErrScanInFlight
	}
	defer s.end(ruleID)
	return s.runScan(st, time.Now().UTC())
}

// StrategyChanged handles a strategy change announcement: when the rule no
// longer runs a session window, its observing alerts are confirmed so they
// stop waiting for a recovery that will never be evaluated.
func (s *Scheduler) StrategyChanged(ruleID int64) {
	snapshot := s.loader.GetSnapshot()
	if st, ok := snapshot.Find(ruleID); ok && window.FromParams(st.Params).IsSessionWindow() {
		return
	}
	s.confirmObserving(ruleID)
}

// StrategyDeleted handles an explicit strategy deletion: observing session
// alerts of the deleted rule are closed outright.
func (s *Scheduler) StrategyDeleted(ruleID int64) {
	closed, err := s.timeouts.CloseObservingSessionAlertsByStrategy(ruleID)
	if err != nil {
		s.logger.Error("Failed to close session alerts of deleted strategy",
			"rule_id", ruleID,
			"error", err)
		return
	}
	if closed > 0 {
		s.logger.Info("Closed session alerts of deleted strategy",
			"rule_id", ruleID,
			"closed", closed)
	}
}

func (s *Scheduler) scanAll(now time.Time) {
	snapshot := s.loader.GetSnapshot()
	for _, st := range snapshot.Strategies {
		st := st
		go s.scanOne(st, now)
	}
	s.updateActiveGauge()
}

func (s *Scheduler) scanOne(st strategy.Strategy, now time.Time) {
	if !s.tryBegin(st.RuleID) {
		s.logger.Warn("Previous scan still in flight, skipping tick",
			"rule_id", st.RuleID,
			"strategy", st.Name)
		return
	}
	defer s.end(st.RuleID)

	if err := s.runScan(st, now); err != nil {
		s.logger.Error("Strategy scan failed",
			"rule_id", st.RuleID,
			"strategy", st.Name,
			"error", err)
	}
}

func (s *Scheduler) runScan(st strategy.Strategy, now time.Time) error {
	start := time.Now()
	err := s.processor.ProcessStrategy(st, now)
	if s.metrics != nil {
		s.metrics.ObserveScan(time.Since(start).Seconds(), err)
	}
	return err
}

func (s *Scheduler) runTimeoutPass() {
	confirmed, err := s.timeouts.CheckSessionTimeouts(time.Now().UTC())
	if err != nil {
		s.logger.Error("Session timeout pass failed", "error", err)
		return
	}
	if confirmed > 0 {
		s.updateActiveGauge()
	}
}

func (s *Scheduler) runIdlePass() {
	snapshot := s.loader.GetSnapshot()
	closeMinutes := make(map[int64]int)
	for _, st := range snapshot.Strategies {
		if st.AutoCloseEnabled() {
			closeMinutes[st.RuleID] = st.CloseMinutes
		}
	}

	if _, err := s.idle.Run(closeMinutes, time.Now().UTC()); err != nil {
		s.logger.Error("Idle close pass failed", "error", err)
		return
	}
	s.updateActiveGauge()
}

// handleSnapshotChange diffs the new snapshot against the previous one.
// Rules that vanished or turned their session window off get their observing
// alerts confirmed. Vanishing is deliberately not treated as deletion: a
// disabled rule and a deleted file look identical here, and closing alerts
// is reserved for the explicit deletion announcement.
func (s *Scheduler) handleSnapshotChange() {
	snapshot := s.loader.GetSnapshot()
	if s.metrics != nil {
		s.metrics.SetStrategiesLoaded(float64(len(snapshot.Strategies)))
	}

	prev := s.prev
	s.prev = snapshot
	if prev == nil {
		return
	}

	for _, old := range prev.Strategies {
		if !window.FromParams(old.Params).IsSessionWindow() {
			continue
		}
		current, ok := snapshot.Find(old.RuleID)
		if ok && window.FromParams(current.Params).IsSessionWindow() {
			continue
		}
		s.confirmObserving(old.RuleID)
	}
}

func (s *Scheduler) confirmObserving(ruleID int64) {
	confirmed, err := s.timeouts.ConfirmObservingAlertsByStrategy(ruleID)
	if err != nil {
		s.logger.Error("Failed to confirm observing alerts",
			"rule_id", ruleID,
			"error", err)
		return
	}
	if confirmed > 0 {
		s.logger.Info("Confirmed observing alerts after strategy change",
			"rule_id", ruleID,
			"confirmed", confirmed)
	}
}

func (s *Scheduler) updateActiveGauge() {
	if s.metrics == nil {
		return
	}
	if n, ok := s.store.Stats()["active_alerts"].(int); ok {
		s.metrics.SetActiveAlerts(float64(n))
	}
}

func (s *Scheduler) tryBegin(ruleID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[ruleID] {
		return false
	}
	s.inFlight[ruleID] = true
	return true
}

func (s *Scheduler) end(ruleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, ruleID)
}

package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// RefreshFunc is the caller-supplied refresh action. A non-nil error
// counts as a failure and grows the interval.
type RefreshFunc func(ctx context.Context) error

// Config holds scheduler settings. Use DefaultConfig as the starting
// point: the pause/reset booleans default to enabled.
type Config struct {
	BaseInterval      time.Duration // Interval at zero errors
	MaxInterval       time.Duration // Interval ceiling
	BackoffMultiplier float64       // Growth factor per consecutive error
	MaxRetries        int           // Consecutive failures before going idle
	PauseOnHidden     bool          // Pause while the hosting view is hidden
	PauseOnOffline    bool          // Pause while the host is offline
	ResetOnSuccess    bool          // Reset the error count on success
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseInterval:      30 * time.Second,
		MaxInterval:       5 * time.Minute,
		BackoffMultiplier: 2,
		MaxRetries:        5,
		PauseOnHidden:     true,
		PauseOnOffline:    true,
		ResetOnSuccess:    true,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.BaseInterval == 0 {
		c.BaseInterval = def.BaseInterval
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
}

// State is an observable snapshot of the scheduler.
type State struct {
	ErrorCount      int
	CurrentInterval time.Duration
	IsRefreshing    bool
	IsPaused        bool
	LastRefreshTime time.Time  // Zero if no refresh has completed
	NextRefreshTime *time.Time // Nil when no refresh is scheduled
}

// Scheduler drives a RefreshFunc on an adaptive interval.
type Scheduler struct {
	cfg    Config
	fn     RefreshFunc
	logger *slog.Logger

	mu          sync.Mutex
	errorCount  int
	refreshing  bool
	paused      bool // explicit Pause()
	visible     bool
	online      bool
	lastRefresh time.Time
	next        *time.Time
	timer       *time.Timer
	gen         uint64 // invalidates timers armed for a superseded schedule
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewScheduler creates a Scheduler. The host starts out visible and
// online; feed changes via SetVisible/SetOnline.
func NewScheduler(cfg Config, fn RefreshFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Scheduler{
		cfg:     cfg,
		fn:      fn,
		logger:  logger.With("component", "refresh"),
		visible: true,
		online:  true,
	}
}

// Interval returns the refresh interval for a given consecutive error
// count: min(base × multiplier^errorCount, max).
func (s *Scheduler) Interval(errorCount int) time.Duration {
	d := float64(s.cfg.BaseInterval) * math.Pow(s.cfg.BackoffMultiplier, float64(errorCount))
	if d < 0 || d > float64(s.cfg.MaxInterval) || math.IsInf(d, 1) {
		return s.cfg.MaxInterval
	}
	return time.Duration(d)
}

// Start begins the schedule with an immediate first refresh.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already stopped")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.scheduleLocked(0)
	s.mu.Unlock()

	s.logger.Info("refresh scheduler started",
		"base_interval", s.cfg.BaseInterval,
		"max_interval", s.cfg.MaxInterval,
		"max_retries", s.cfg.MaxRetries,
	)
	return nil
}

// Stop tears the scheduler down. No refresh fires after Stop returns; an
// in-flight refresh has its context cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.clearTimerLocked()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Info("refresh scheduler stopped")
}

// Refresh triggers a refresh now, subject to the pause conditions. The
// refresh runs asynchronously; calls while one is in flight are ignored.
func (s *Scheduler) Refresh() {
	go s.doRefresh(false)
}

// Pause suspends scheduling until Resume or Reset.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.clearTimerLocked()
	s.mu.Unlock()

	s.logger.Debug("refresh paused by caller")
}

// Resume lifts an explicit pause and fires an immediate refresh. Resume
// also recovers from retry exhaustion: the immediate refresh runs even at
// the ceiling, and its outcome decides whether scheduling continues.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	force := s.errorCount >= s.cfg.MaxRetries
	s.mu.Unlock()

	go s.doRefresh(force)
}

// Reset clears the error count and any pause, then fires an immediate
// refresh.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.errorCount = 0
	s.paused = false
	s.mu.Unlock()

	s.logger.Debug("refresh state reset")
	go s.doRefresh(false)
}

// SetVisible feeds the host's visibility signal. Becoming hidden pauses
// (when configured); becoming visible fires an immediate refresh, since a
// long hidden period likely left displayed state stale.
func (s *Scheduler) SetVisible(visible bool) {
	s.mu.Lock()
	if s.visible == visible {
		s.mu.Unlock()
		return
	}
	s.visible = visible
	if !visible {
		if s.cfg.PauseOnHidden {
			s.clearTimerLocked()
		}
		s.mu.Unlock()
		return
	}
	refreshNow := s.next == nil && !s.refreshing
	s.mu.Unlock()

	if refreshNow {
		go s.doRefresh(false)
	}
}

// SetOnline feeds the host's connectivity signal. Semantics mirror
// SetVisible.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	if !online {
		if s.cfg.PauseOnOffline {
			s.clearTimerLocked()
		}
		s.mu.Unlock()
		return
	}
	refreshNow := s.next == nil && !s.refreshing
	s.mu.Unlock()

	if refreshNow {
		go s.doRefresh(false)
	}
}

// State returns an observable snapshot.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *time.Time
	if s.next != nil {
		t := *s.next
		next = &t
	}
	return State{
		ErrorCount:      s.errorCount,
		CurrentInterval: s.Interval(s.errorCount),
		IsRefreshing:    s.refreshing,
		IsPaused:        s.paused,
		LastRefreshTime: s.lastRefresh,
		NextRefreshTime: next,
	}
}

// blockedLocked reports whether a refresh may not run right now. force
// skips the retry-ceiling check (used by Resume). Callers hold mu.
func (s *Scheduler) blockedLocked(force bool) bool {
	if s.stopped || s.paused {
		return true
	}
	if s.cfg.PauseOnHidden && !s.visible {
		return true
	}
	if s.cfg.PauseOnOffline && !s.online {
		return true
	}
	if !force && s.errorCount >= s.cfg.MaxRetries {
		return true
	}
	return false
}

// clearTimerLocked cancels the pending timer and publishes "no refresh
// scheduled". Callers hold mu.
func (s *Scheduler) clearTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.next = nil
	s.gen++
}

// scheduleLocked arms the timer for the next refresh, unless a pause
// condition holds. Callers hold mu.
func (s *Scheduler) scheduleLocked(delay time.Duration) {
	s.clearTimerLocked()

	if s.blockedLocked(false) {
		return
	}

	at := time.Now().Add(delay)
	s.next = &at
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() {
		s.fire(gen)
	})
}

// fire runs from the timer goroutine.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.doRefresh(false)
}

// doRefresh performs one guarded refresh cycle and schedules the next.
func (s *Scheduler) doRefresh(force bool) {
	s.mu.Lock()
	if s.refreshing || s.blockedLocked(force) {
		s.mu.Unlock()
		return
	}
	s.refreshing = true
	s.clearTimerLocked()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	err := s.callRefresh(ctx)

	s.mu.Lock()
	s.refreshing = false
	s.lastRefresh = time.Now()

	if err != nil {
		s.errorCount++
		interval := s.Interval(s.errorCount)
		if s.errorCount >= s.cfg.MaxRetries {
			s.logger.Warn("refresh retries exhausted",
				"error", err,
				"error_count", s.errorCount,
			)
		} else {
			s.logger.Warn("refresh failed",
				"error", err,
				"error_count", s.errorCount,
				"next_interval", interval,
			)
		}
		s.scheduleLocked(interval)
		s.mu.Unlock()
		return
	}

	if s.cfg.ResetOnSuccess {
		s.errorCount = 0
	}
	s.scheduleLocked(s.Interval(s.errorCount))
	s.mu.Unlock()
}

// callRefresh invokes the refresh function, converting a panic into an
// error so a misbehaving callback never kills the scheduler.
func (s *Scheduler) callRefresh(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
	}()
	return s.fn(ctx)
}

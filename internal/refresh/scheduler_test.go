package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingFunc is a RefreshFunc that counts invocations and fails the first
// failN of them.
type countingFunc struct {
	mu    sync.Mutex
	calls int
	failN int
}

func (c *countingFunc) fn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failN {
		return errors.New("upstream unavailable")
	}
	return nil
}

func (c *countingFunc) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func fastConfig() Config {
	return Config{
		BaseInterval:      10 * time.Millisecond,
		MaxInterval:       80 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxRetries:        3,
		PauseOnHidden:     true,
		PauseOnOffline:    true,
		ResetOnSuccess:    true,
	}
}

// slowConfig keeps the steady-state interval long enough that only the
// refreshes a test triggers explicitly can fire.
func slowConfig() Config {
	cfg := fastConfig()
	cfg.BaseInterval = time.Hour
	cfg.MaxInterval = 2 * time.Hour
	return cfg
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestInterval(t *testing.T) {
	s := NewScheduler(Config{
		BaseInterval:      30 * time.Second,
		MaxInterval:       5 * time.Minute,
		BackoffMultiplier: 2,
	}, func(context.Context) error { return nil }, nil)

	tests := []struct {
		errorCount int
		want       time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{4, 5 * time.Minute}, // 480s capped
		{10, 5 * time.Minute},
		{1000, 5 * time.Minute}, // overflow territory, still the cap
	}

	for _, tt := range tests {
		if got := s.Interval(tt.errorCount); got != tt.want {
			t.Errorf("Interval(%d) = %v, want %v", tt.errorCount, got, tt.want)
		}
	}
}

func TestInterval_MultiplierOne(t *testing.T) {
	s := NewScheduler(Config{
		BaseInterval:      10 * time.Second,
		MaxInterval:       time.Minute,
		BackoffMultiplier: 1,
	}, func(context.Context) error { return nil }, nil)

	for _, n := range []int{0, 1, 5} {
		if got := s.Interval(n); got != 10*time.Second {
			t.Errorf("Interval(%d) = %v, want 10s", n, got)
		}
	}
}

func TestScheduler_StartRefreshesImmediately(t *testing.T) {
	cf := &countingFunc{}
	s := NewScheduler(slowConfig(), cf.fn, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, time.Second, func() bool { return cf.count() == 1 },
		"initial refresh never fired")
	eventually(t, time.Second, func() bool {
		st := s.State()
		return st.NextRefreshTime != nil && !st.LastRefreshTime.IsZero()
	}, "next refresh never scheduled after the initial one")

	if got := s.State().ErrorCount; got != 0 {
		t.Errorf("ErrorCount = %d, want 0", got)
	}
}

func TestScheduler_SuccessResetsErrorCount(t *testing.T) {
	cf := &countingFunc{failN: 2}
	s := NewScheduler(fastConfig(), cf.fn, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, 2*time.Second, func() bool { return cf.count() >= 3 },
		"scheduler never recovered from failures")
	eventually(t, time.Second, func() bool { return s.State().ErrorCount == 0 },
		"ErrorCount never reset after success")
}

func TestScheduler_RetryExhaustionGoesIdle(t *testing.T) {
	cf := &countingFunc{failN: 1000}
	s := NewScheduler(fastConfig(), cf.fn, nil) // MaxRetries: 3

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, 2*time.Second, func() bool { return cf.count() == 3 },
		"retries never ran")

	// The third failure reaches the ceiling: nothing further is scheduled.
	eventually(t, time.Second, func() bool { return s.State().NextRefreshTime == nil },
		"NextRefreshTime not cleared at the ceiling")

	time.Sleep(200 * time.Millisecond)
	if got := cf.count(); got != 3 {
		t.Errorf("refresh calls = %d, want exactly 3 (idle after exhaustion)", got)
	}

	st := s.State()
	if st.ErrorCount != 3 {
		t.Errorf("ErrorCount = %d, want 3", st.ErrorCount)
	}
	if st.IsPaused {
		t.Error("IsPaused should be false: exhaustion idles, it does not pause")
	}
}

func TestScheduler_ResetRecoversFromExhaustion(t *testing.T) {
	cf := &countingFunc{failN: 3}
	s := NewScheduler(fastConfig(), cf.fn, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, 2*time.Second, func() bool {
		return cf.count() == 3 && s.State().NextRefreshTime == nil
	}, "scheduler never exhausted")

	s.Reset()

	eventually(t, time.Second, func() bool { return cf.count() == 4 },
		"Reset did not trigger an immediate refresh")
	eventually(t, time.Second, func() bool {
		st := s.State()
		return st.ErrorCount == 0 && st.NextRefreshTime != nil
	}, "schedule not restored after Reset")
}

func TestScheduler_ResumeRecoversFromExhaustion(t *testing.T) {
	cf := &countingFunc{failN: 3}
	s := NewScheduler(fastConfig(), cf.fn, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, 2*time.Second, func() bool {
		return cf.count() == 3 && s.State().NextRefreshTime == nil
	}, "scheduler never exhausted")

	// Resume forces one attempt despite the ceiling; its success clears the
	// error count and resumes the schedule.
	s.Resume()

	eventually(t, time.Second, func() bool { return cf.count() == 4 },
		"Resume did not trigger a refresh at the ceiling")
	eventually(t, time.Second, func() bool {
		st := s.State()
		return st.ErrorCount == 0 && st.NextRefreshTime != nil
	}, "schedule not restored after Resume")
}

func TestScheduler_AtMostOneInFlight(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	s := NewScheduler(slowConfig(), func(ctx context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return nil
	}, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, "initial refresh never started")

	// Hammer Refresh while one is in flight: all are ignored.
	for i := 0; i < 10; i++ {
		s.Refresh()
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	if calls != 1 {
		t.Errorf("concurrent refreshes = %d, want 1", calls)
	}
	mu.Unlock()

	if !s.State().IsRefreshing {
		t.Error("IsRefreshing should be true while the refresh runs")
	}

	close(release)
	eventually(t, time.Second, func() bool { return !s.State().IsRefreshing },
		"refresh never finished")
}

func TestScheduler_PauseAndResume(t *testing.T) {
	cf := &countingFunc{}
	s := NewScheduler(slowConfig(), cf.fn, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, time.Second, func() bool { return cf.count() == 1 },
		"initial refresh never fired")

	s.Pause()

	st := s.State()
	if !st.IsPaused {
		t.Error("IsPaused = false after Pause")
	}
	if st.NextRefreshTime != nil {
		t.Error("NextRefreshTime should be nil while paused")
	}

	// Manual triggers are ignored while paused.
	s.Refresh()
	time.Sleep(50 * time.Millisecond)
	if got := cf.count(); got != 1 {
		t.Errorf("refresh calls while paused = %d, want 1", got)
	}

	s.Resume()
	eventually(t, time.Second, func() bool { return cf.count() == 2 },
		"Resume did not trigger an immediate refresh")
	if s.State().IsPaused {
		t.Error("IsPaused = true after Resume")
	}
}

func TestScheduler_HiddenPausesVisibleRefreshes(t *testing.T) {
	cf := &countingFunc{}
	s := NewScheduler(slowConfig(), cf.fn, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, time.Second, func() bool { return cf.count() == 1 },
		"initial refresh never fired")

	s.SetVisible(false)
	if s.State().NextRefreshTime != nil {
		t.Error("NextRefreshTime should be nil while hidden")
	}

	s.SetVisible(true)
	eventually(t, time.Second, func() bool { return cf.count() == 2 },
		"becoming visible did not trigger an immediate refresh")
	eventually(t, time.Second, func() bool { return s.State().NextRefreshTime != nil },
		"schedule not restored after becoming visible")
}

func TestScheduler_OfflinePausesOnlineRefreshes(t *testing.T) {
	cf := &countingFunc{}
	s := NewScheduler(slowConfig(), cf.fn, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, time.Second, func() bool { return cf.count() == 1 },
		"initial refresh never fired")

	s.SetOnline(false)
	if s.State().NextRefreshTime != nil {
		t.Error("NextRefreshTime should be nil while offline")
	}

	// Manual triggers are blocked while offline.
	s.Refresh()
	time.Sleep(50 * time.Millisecond)
	if got := cf.count(); got != 1 {
		t.Errorf("refresh calls while offline = %d, want 1", got)
	}

	s.SetOnline(true)
	eventually(t, time.Second, func() bool { return cf.count() == 2 },
		"coming back online did not trigger an immediate refresh")
}

func TestScheduler_PauseOnHiddenDisabled(t *testing.T) {
	cfg := slowConfig()
	cfg.PauseOnHidden = false

	cf := &countingFunc{}
	s := NewScheduler(cfg, cf.fn, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	eventually(t, time.Second, func() bool { return cf.count() == 1 },
		"initial refresh never fired")

	s.SetVisible(false)
	eventually(t, time.Second, func() bool { return s.State().NextRefreshTime != nil },
		"NextRefreshTime cleared although PauseOnHidden is disabled")
}

func TestScheduler_StopPreventsFurtherRefreshes(t *testing.T) {
	cf := &countingFunc{}
	cfg := fastConfig()

	s := NewScheduler(cfg, cf.fn, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	eventually(t, time.Second, func() bool { return cf.count() >= 1 },
		"initial refresh never fired")

	s.Stop()
	after := cf.count()

	time.Sleep(100 * time.Millisecond)
	if got := cf.count(); got != after {
		t.Errorf("refresh calls after Stop = %d, want %d", got, after)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Error("Start after Stop should fail")
	}
}

func TestScheduler_PanicCountsAsFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	s := NewScheduler(fastConfig(), func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			panic("boom")
		}
		return nil
	}, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	// The panic is converted to a failure and the schedule survives.
	eventually(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, "scheduler died after a panicking refresh")

	eventually(t, time.Second, func() bool { return s.State().ErrorCount == 0 },
		"ErrorCount never reset after recovery")
}

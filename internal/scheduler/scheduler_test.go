package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu        sync.Mutex
	resetTime string
	resetErr  error
	fireErr   error
	resets    []string
}

func (f *fakeStore) GetResetTime(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resetTime, f.resetErr
}

func (f *fakeStore) PerformDailyReset(ctx context.Context, today string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fireErr != nil {
		return f.fireErr
	}
	f.resets = append(f.resets, today)
	return nil
}

func (f *fakeStore) setResetTime(value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetTime = value
}

func (f *fakeStore) resetDates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resets...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Emit(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) emitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func TestParseResetTime(t *testing.T) {
	cases := []struct {
		value   string
		hour    int
		minute  int
		wantErr bool
	}{
		{"00:00", 0, 0, false},
		{"09:30", 9, 30, false},
		{"23:59", 23, 59, false},
		{" 08:15 ", 8, 15, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"-1:30", 0, 0, true},
		{"0930", 0, 0, true},
		{"ab:cd", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tc := range cases {
		hour, minute, err := ParseResetTime(tc.value)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseResetTime(%q) expected error, got %d:%d", tc.value, hour, minute)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseResetTime(%q) unexpected error: %v", tc.value, err)
		}
		if hour != tc.hour || minute != tc.minute {
			t.Fatalf("ParseResetTime(%q) = %d:%d, want %d:%d", tc.value, hour, minute, tc.hour, tc.minute)
		}
	}
}

func TestPrevFireTime(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	before := PrevFireTime(now, 9, 0)
	if !before.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected today's 09:00, got %s", before)
	}

	after := PrevFireTime(now, 11, 0)
	if !after.Equal(time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected yesterday's 11:00, got %s", after)
	}
}

func TestMissedFire(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	grace := 2 * time.Minute

	// Fired after today's occurrence: healthy.
	fired := time.Date(2026, 3, 2, 9, 0, 5, 0, time.UTC)
	if MissedFire(now, fired, 9, 0, grace) {
		t.Fatal("expected no missed fire when reset already ran today")
	}

	// Last firing was yesterday and today's 09:00 passed an hour ago.
	stale := time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC)
	if !MissedFire(now, stale, 9, 0, grace) {
		t.Fatal("expected missed fire for stale baseline")
	}

	// Still inside the grace window.
	justAfter := time.Date(2026, 3, 2, 9, 59, 0, 0, time.UTC)
	if MissedFire(justAfter, stale, 9, 58, grace) {
		t.Fatal("expected no missed fire inside grace window")
	}

	// Armed after today's occurrence: the engine was never due to run it.
	armedLate := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if MissedFire(now, armedLate, 9, 0, grace) {
		t.Fatal("expected no missed fire when armed after the occurrence")
	}

	if MissedFire(now, time.Time{}, 9, 0, grace) {
		t.Fatal("expected no missed fire with zero baseline")
	}
}

func TestStartArmsWithStoredTime(t *testing.T) {
	st := &fakeStore{resetTime: "03:30"}
	engine := New(st, &fakeNotifier{}, Options{Location: time.UTC})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer engine.Stop()

	status := engine.Status()
	if !status.Armed {
		t.Fatal("expected engine to be armed")
	}
	if status.ResetTime != "03:30" {
		t.Fatalf("expected reset time 03:30, got %s", status.ResetTime)
	}
	if status.NextFireTime == nil {
		t.Fatal("expected next fire time to be set")
	}
	if status.NextFireTime.Hour() != 3 || status.NextFireTime.Minute() != 30 {
		t.Fatalf("expected next fire at 03:30, got %s", status.NextFireTime)
	}
}

func TestStartFallsBackOnMalformedTime(t *testing.T) {
	st := &fakeStore{resetTime: "25:99"}
	engine := New(st, &fakeNotifier{}, Options{Location: time.UTC})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer engine.Stop()

	status := engine.Status()
	if !status.Armed {
		t.Fatal("expected engine to be armed after fallback")
	}
	if status.ResetTime != "00:00" {
		t.Fatalf("expected fallback reset time 00:00, got %s", status.ResetTime)
	}
}

func TestStartFailsWhenStoreUnreachable(t *testing.T) {
	st := &fakeStore{resetErr: errors.New("connection refused")}
	engine := New(st, &fakeNotifier{}, Options{Location: time.UTC})

	if err := engine.Start(context.Background()); err == nil {
		engine.Stop()
		t.Fatal("expected start to fail when settings are unreachable")
	}
}

func TestManualResetEmitsEvent(t *testing.T) {
	st := &fakeStore{resetTime: "00:00"}
	notifier := &fakeNotifier{}
	engine := New(st, notifier, Options{Location: time.UTC})

	if err := engine.ManualReset(context.Background()); err != nil {
		t.Fatalf("manual reset: %v", err)
	}

	dates := st.resetDates()
	if len(dates) != 1 {
		t.Fatalf("expected one reset, got %d", len(dates))
	}
	if _, err := time.Parse("2006-01-02", dates[0]); err != nil {
		t.Fatalf("reset date %q not in YYYY-MM-DD form: %v", dates[0], err)
	}

	events := notifier.emitted()
	if len(events) != 1 || events[0] != "ticket.dailyReset" {
		t.Fatalf("expected one ticket.dailyReset event, got %v", events)
	}

	status := engine.Status()
	if status.LastFireTime == nil {
		t.Fatal("expected last fire time after manual reset")
	}
	if status.LastError != "" {
		t.Fatalf("expected no last error, got %s", status.LastError)
	}
}

func TestManualResetFailureKeepsState(t *testing.T) {
	st := &fakeStore{resetTime: "00:00", fireErr: errors.New("deadlock detected")}
	notifier := &fakeNotifier{}
	engine := New(st, notifier, Options{Location: time.UTC})

	if err := engine.ManualReset(context.Background()); err == nil {
		t.Fatal("expected manual reset to fail")
	}

	if events := notifier.emitted(); len(events) != 0 {
		t.Fatalf("expected no events after failed reset, got %v", events)
	}

	status := engine.Status()
	if status.LastFireTime != nil {
		t.Fatal("expected no last fire time after failed reset")
	}
	if status.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
}

func TestSettingsChangeRearms(t *testing.T) {
	st := &fakeStore{resetTime: "04:00"}
	engine := New(st, &fakeNotifier{}, Options{Location: time.UTC, PollInterval: 20 * time.Millisecond})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer engine.Stop()

	st.setResetTime("05:30")

	deadline := time.Now().Add(2 * time.Second)
	for {
		status := engine.Status()
		if status.ResetTime == "05:30" {
			if !status.Armed || status.NextFireTime == nil {
				t.Fatalf("expected armed trigger after re-arm, got %+v", status)
			}
			if status.NextFireTime.Hour() != 5 || status.NextFireTime.Minute() != 30 {
				t.Fatalf("expected next fire at 05:30, got %s", status.NextFireTime)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("trigger never re-armed to new time, status %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthCheckRearmsDeadTrigger(t *testing.T) {
	st := &fakeStore{resetTime: "00:00"}
	engine := New(st, &fakeNotifier{}, Options{Location: time.UTC, HealthInterval: 20 * time.Millisecond})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer engine.Stop()

	// Kill the trigger behind the engine's back, the way a wedged timer
	// library would.
	engine.mu.Lock()
	engine.cron.Stop()
	engine.cron = nil
	engine.entryID = 0
	engine.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if status := engine.Status(); status.Armed {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("health check never re-armed the dead trigger")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRearmAfterStopStaysDisarmed(t *testing.T) {
	st := &fakeStore{resetTime: "00:00"}
	engine := New(st, &fakeNotifier{}, Options{Location: time.UTC})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	engine.Stop()

	// A watcher tick in flight during Stop lands here; it must not bring
	// the trigger back.
	engine.rearm()

	status := engine.Status()
	if status.Armed {
		t.Fatalf("expected trigger to stay disarmed after stop, got %+v", status)
	}
	if status.NextFireTime != nil {
		t.Fatalf("expected no next fire time after stop, got %s", status.NextFireTime)
	}
}

func TestStopDisarms(t *testing.T) {
	st := &fakeStore{resetTime: "00:00"}
	engine := New(st, &fakeNotifier{}, Options{Location: time.UTC})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	engine.Stop()

	status := engine.Status()
	if status.Armed {
		t.Fatal("expected engine to be disarmed after stop")
	}
}

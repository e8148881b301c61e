package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultResetTime = "00:00"

// Store is the slice of the persistence layer the reset engine needs.
type Store interface {
	GetResetTime(ctx context.Context) (string, error)
	PerformDailyReset(ctx context.Context, today string) error
}

// Notifier publishes fire-and-forget events; delivery never gates a reset.
type Notifier interface {
	Emit(event string, payload interface{})
}

type Options struct {
	Location       *time.Location
	PollInterval   time.Duration
	HealthInterval time.Duration
	HealthGrace    time.Duration
}

type Status struct {
	Armed        bool       `json:"armed"`
	ResetTime    string     `json:"reset_time"`
	NextFireTime *time.Time `json:"next_fire_time,omitempty"`
	LastFireTime *time.Time `json:"last_fire_time,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// Engine fires the daily reset at the configured wall-clock time. It re-arms
// itself when the stored setting changes and when the health check finds the
// trigger dead or a firing silently missed.
type Engine struct {
	store    Store
	notifier Notifier
	loc      *time.Location

	pollInterval   time.Duration
	healthInterval time.Duration
	healthGrace    time.Duration

	mu        sync.Mutex
	cron      *cron.Cron
	entryID   cron.EntryID
	resetTime string
	armedAt   time.Time
	lastFire  time.Time
	lastErr   error
	running   bool

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(store Store, notifier Notifier, opts Options) *Engine {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 5 * time.Minute
	}
	health := opts.HealthInterval
	if health <= 0 {
		health = 30 * time.Minute
	}
	grace := opts.HealthGrace
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	return &Engine{
		store:          store,
		notifier:       notifier,
		loc:            loc,
		pollInterval:   poll,
		healthInterval: health,
		healthGrace:    grace,
	}
}

// Start arms the trigger and launches the settings watcher and health check.
// A malformed or missing stored time falls back to 00:00; Start fails only
// when the store itself is unreachable.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.stop = make(chan struct{})
	e.mu.Unlock()

	if err := e.arm(ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	e.wg.Add(2)
	go e.watchSettings()
	go e.watchHealth()
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stop)
	if e.cron != nil {
		e.cron.Stop()
		e.cron = nil
		e.entryID = 0
	}
	e.mu.Unlock()
	e.wg.Wait()
	log.Printf("reset scheduler stopped")
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{ResetTime: e.resetTime}
	if !e.lastFire.IsZero() {
		t := e.lastFire
		status.LastFireTime = &t
	}
	if e.lastErr != nil {
		status.LastError = e.lastErr.Error()
	}
	if e.cron != nil && e.entryID != 0 {
		entry := e.cron.Entry(e.entryID)
		if entry.Valid() && !entry.Next.IsZero() {
			status.Armed = true
			next := entry.Next
			status.NextFireTime = &next
		}
	}
	return status
}

// ManualReset runs the reset transaction immediately, outside the schedule.
func (e *Engine) ManualReset(ctx context.Context) error {
	return e.performReset(ctx)
}

func (e *Engine) arm(ctx context.Context) error {
	resetTime, err := e.loadResetTime(ctx)
	if err != nil {
		return err
	}

	hour, minute, perr := ParseResetTime(resetTime)
	if perr != nil {
		log.Printf("reset scheduler: invalid reset time %q, falling back to %s: %v", resetTime, defaultResetTime, perr)
		resetTime = defaultResetTime
		hour, minute = 0, 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A watcher tick can race Stop; once the engine is down, no tick may
	// bring the trigger back.
	if !e.running {
		return nil
	}

	if e.cron != nil {
		e.cron.Stop()
	}
	e.cron = cron.New(cron.WithLocation(e.loc))
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	id, err := e.cron.AddFunc(spec, e.fire)
	if err != nil {
		return fmt.Errorf("arm reset trigger: %w", err)
	}
	e.entryID = id
	e.resetTime = resetTime
	e.armedAt = time.Now().In(e.loc)
	e.cron.Start()

	next := e.cron.Entry(id).Next
	log.Printf("reset scheduler armed at=%s tz=%s next=%s", resetTime, e.loc, next.Format(time.RFC3339))
	return nil
}

func (e *Engine) rearm() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.arm(ctx); err != nil {
		log.Printf("reset scheduler: re-arm failed: %v", err)
	}
}

func (e *Engine) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.performReset(ctx); err != nil {
		log.Printf("reset scheduler: SCHEDULED RESET FAILED, prior state intact, will retry next cycle: %v", err)
	}
}

func (e *Engine) performReset(ctx context.Context) error {
	now := time.Now().In(e.loc)
	today := now.Format("2006-01-02")

	if err := e.store.PerformDailyReset(ctx, today); err != nil {
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.lastFire = now
	e.lastErr = nil
	e.mu.Unlock()

	log.Printf("daily reset completed date=%s", today)
	e.notifier.Emit("ticket.dailyReset", map[string]interface{}{
		"date":      today,
		"timestamp": now.UTC(),
	})
	return nil
}

// watchSettings polls the stored reset time and re-arms when it changes.
func (e *Engine) watchSettings() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		resetTime, err := e.loadResetTime(ctx)
		cancel()
		if err != nil {
			log.Printf("reset scheduler: settings check failed: %v", err)
			continue
		}
		if _, _, err := ParseResetTime(resetTime); err != nil {
			resetTime = defaultResetTime
		}

		e.mu.Lock()
		changed := e.resetTime != "" && e.resetTime != resetTime
		e.mu.Unlock()
		if changed {
			log.Printf("reset scheduler: reset time changed to %s, re-arming", resetTime)
			e.rearm()
		}
	}
}

// watchHealth verifies the trigger is still armed and that no firing was
// missed beyond the grace window. Host sleep, clock changes, or a wedged
// timer all surface here as a teardown-and-rearm.
func (e *Engine) watchHealth() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		armed := e.cron != nil && e.entryID != 0 && e.cron.Entry(e.entryID).Valid() && !e.cron.Entry(e.entryID).Next.IsZero()
		resetTime := e.resetTime
		baseline := e.lastFire
		if e.armedAt.After(baseline) {
			baseline = e.armedAt
		}
		e.mu.Unlock()

		if !armed {
			log.Printf("reset scheduler: health check found trigger disarmed, re-arming")
			e.rearm()
			continue
		}

		hour, minute, err := ParseResetTime(resetTime)
		if err != nil {
			continue
		}
		if MissedFire(time.Now().In(e.loc), baseline, hour, minute, e.healthGrace) {
			log.Printf("reset scheduler: health check detected missed firing (baseline=%s), re-arming", baseline.Format(time.RFC3339))
			e.rearm()
		}
	}
}

func (e *Engine) loadResetTime(ctx context.Context) (string, error) {
	value, err := e.store.GetResetTime(ctx)
	if err != nil {
		return "", err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		log.Printf("reset scheduler: no reset time configured, using %s", defaultResetTime)
		return defaultResetTime, nil
	}
	return value, nil
}

// ParseResetTime validates an "HH:MM" wall-clock setting.
func ParseResetTime(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", value)
	}
	return hour, minute, nil
}

// MissedFire reports whether the most recent scheduled occurrence before now
// passed by more than grace with no firing since baseline. The baseline is
// the later of the last firing and the last re-arm, so an engine armed after
// today's occurrence is not flagged for a reset it was never due to run.
func MissedFire(now, baseline time.Time, hour, minute int, grace time.Duration) bool {
	occurrence := PrevFireTime(now, hour, minute)
	if now.Sub(occurrence) <= grace {
		return false
	}
	if baseline.IsZero() {
		return false
	}
	return baseline.Before(occurrence)
}

// PrevFireTime returns the most recent occurrence of the daily HH:MM trigger
// at or before now, in now's location.
func PrevFireTime(now time.Time, hour, minute int) time.Time {
	occurrence := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if occurrence.After(now) {
		occurrence = occurrence.AddDate(0, 0, -1)
	}
	return occurrence
}

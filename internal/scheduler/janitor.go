// Package scheduler runs periodic housekeeping on the local store.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/flowdesk/pkg/schema"
)

// DefaultSchedule prunes stale drafts at the top of every hour.
const DefaultSchedule = "0 * * * *"

// DraftPruner is the slice of store.Store the janitor needs.
type DraftPruner interface {
	PruneDrafts(ctx context.Context, before time.Time) ([]string, error)
}

// Publisher receives a draft_discarded event per pruned draft. Optional.
type Publisher interface {
	Publish(ctx context.Context, event schema.EditorEvent) error
}

// Config configures a Janitor.
type Config struct {
	Schedule string        // cron expression, five fields
	TTL      time.Duration // drafts untouched for longer are pruned
	Poll     time.Duration // how often the schedule is checked; default 1m
}

// Janitor deletes drafts, and their event logs, that have not been touched
// for longer than the configured TTL.
type Janitor struct {
	store    DraftPruner
	hub      Publisher
	schedule cron.Schedule
	ttl      time.Duration
	poll     time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	next    time.Time
	running bool
}

// NewJanitor parses cfg.Schedule and returns a stopped Janitor.
func NewJanitor(s DraftPruner, cfg Config, logger *slog.Logger) (*Janitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.TTL <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "draft ttl must be positive, got %s", cfg.TTL)
	}
	if cfg.Poll <= 0 {
		cfg.Poll = time.Minute
	}
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:    s,
		schedule: sched,
		ttl:      cfg.TTL,
		poll:     cfg.Poll,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// ParseSchedule parses a standard five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse cron expression %q", expr).WithCause(err)
	}
	return sched, nil
}

// WithPublisher makes the janitor announce pruned drafts.
func (j *Janitor) WithPublisher(p Publisher) *Janitor {
	j.hub = p
	return j
}

// Next returns the next scheduled run, zero when stopped.
func (j *Janitor) Next() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next
}

// Start launches the background loop.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.done != nil {
		j.mu.Unlock()
		return fmt.Errorf("janitor already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.next = j.schedule.Next(j.now())
	next := j.next
	j.mu.Unlock()

	go j.loop(loopCtx)
	j.logger.Info("draft janitor started", slog.Time("next_run", next), slog.Duration("ttl", j.ttl))
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Janitor) tick(ctx context.Context) {
	now := j.now()
	j.mu.Lock()
	due := !j.next.After(now)
	if due {
		j.next = j.schedule.Next(now)
	}
	j.mu.Unlock()
	if !due {
		return
	}
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("draft prune failed", slog.String("error", err.Error()))
	}
}

// RunOnce prunes stale drafts now and returns the pruned flow ids. A run
// already in progress makes this call a no-op.
func (j *Janitor) RunOnce(ctx context.Context) ([]string, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil, nil
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	now := j.now()
	cutoff := now.Add(-j.ttl)
	pruned, err := j.store.PruneDrafts(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("prune drafts before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if len(pruned) > 0 {
		j.logger.Info("pruned stale drafts", slog.Int("count", len(pruned)), slog.Time("cutoff", cutoff))
	}
	if j.hub != nil {
		for _, id := range pruned {
			ev := schema.EditorEvent{FlowID: id, Kind: schema.EventDraftDiscarded, Timestamp: now}
			if err := j.hub.Publish(ctx, ev); err != nil {
				j.logger.Warn("publish draft_discarded failed", slog.String("flow_id", id), slog.String("error", err.Error()))
			}
		}
	}
	return pruned, nil
}

// Stop shuts the loop down and waits for it to exit.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.next = time.Time{}
	j.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	j.logger.Info("draft janitor stopped")
	return nil
}

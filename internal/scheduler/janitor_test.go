package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowdesk/pkg/schema"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	ids     []string
	err     error
	block   chan struct{}
}

func (f *fakePruner) PruneDrafts(_ context.Context, before time.Time) ([]string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return f.ids, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

type recordingHub struct {
	mu     sync.Mutex
	events []schema.EditorEvent
}

func (h *recordingHub) Publish(_ context.Context, e schema.EditorEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewJanitorValidation(t *testing.T) {
	_, err := NewJanitor(&fakePruner{}, Config{TTL: 0}, quietLogger())
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = NewJanitor(&fakePruner{}, Config{Schedule: "not a cron", TTL: time.Hour}, quietLogger())
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	j, err := NewJanitor(&fakePruner{}, Config{TTL: time.Hour}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, j.poll)
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("30 2 * * *")
	require.NoError(t, err)
	from := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 2, 2, 30, 0, 0, time.UTC), sched.Next(from))

	_, err = ParseSchedule("@hourly")
	assert.NoError(t, err)
}

func TestRunOnceUsesTTLCutoff(t *testing.T) {
	p := &fakePruner{ids: []string{"f1", "f2"}}
	hub := &recordingHub{}
	j, err := NewJanitor(p, Config{TTL: 48 * time.Hour}, quietLogger())
	require.NoError(t, err)
	j.WithPublisher(hub)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	pruned, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, pruned)
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), p.cutoffs[0])

	require.Len(t, hub.events, 2)
	assert.Equal(t, schema.EventDraftDiscarded, hub.events[0].Kind)
	assert.Equal(t, "f2", hub.events[1].FlowID)
}

func TestRunOnceError(t *testing.T) {
	p := &fakePruner{err: errors.New("disk gone")}
	j, err := NewJanitor(p, Config{TTL: time.Hour}, quietLogger())
	require.NoError(t, err)

	_, err = j.RunOnce(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}

func TestRunOnceSkipsWhileRunning(t *testing.T) {
	p := &fakePruner{block: make(chan struct{})}
	j, err := NewJanitor(p, Config{TTL: time.Hour}, quietLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = j.RunOnce(context.Background())
	}()
	require.Eventually(t, func() bool {
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.running
	}, time.Second, 5*time.Millisecond)

	pruned, err := j.RunOnce(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, pruned)

	close(p.block)
	<-done
	assert.Equal(t, 1, p.calls())
}

func TestStartRunsWhenDue(t *testing.T) {
	p := &fakePruner{}
	j, err := NewJanitor(p, Config{Schedule: "* * * * *", TTL: time.Hour, Poll: 10 * time.Millisecond}, quietLogger())
	require.NoError(t, err)

	base := time.Date(2026, 5, 10, 12, 0, 30, 0, time.UTC)
	var mu sync.Mutex
	current := base
	j.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	require.NoError(t, j.Start(context.Background()))
	assert.Error(t, j.Start(context.Background()))
	assert.Equal(t, time.Date(2026, 5, 10, 12, 1, 0, 0, time.UTC), j.Next())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, p.calls())

	mu.Lock()
	current = base.Add(time.Minute)
	mu.Unlock()
	require.Eventually(t, func() bool { return p.calls() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, j.Stop())
	require.NoError(t, j.Stop())
	assert.True(t, j.Next().IsZero())
}

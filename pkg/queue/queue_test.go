package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gate blocks every job until released, recording the order jobs start in.
type gate struct {
	mu       sync.Mutex
	started  []string
	release  map[string]chan struct{}
	running  map[int64]int
	maxUser  int
	total    int32
	maxTotal int32
}

func newGate() *gate {
	return &gate{release: map[string]chan struct{}{}, running: map[int64]int{}}
}

func (g *gate) ch(id string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.release[id]
	if !ok {
		c = make(chan struct{})
		g.release[id] = c
	}
	return c
}

func (g *gate) Process(ctx context.Context, job *models.RenameJob) error {
	g.mu.Lock()
	g.started = append(g.started, job.ID)
	g.running[job.UserID]++
	if g.running[job.UserID] > g.maxUser {
		g.maxUser = g.running[job.UserID]
	}
	g.mu.Unlock()

	n := atomic.AddInt32(&g.total, 1)
	for {
		m := atomic.LoadInt32(&g.maxTotal)
		if n <= m || atomic.CompareAndSwapInt32(&g.maxTotal, m, n) {
			break
		}
	}

	select {
	case <-g.ch(job.ID):
	case <-ctx.Done():
	}

	atomic.AddInt32(&g.total, -1)
	g.mu.Lock()
	g.running[job.UserID]--
	g.mu.Unlock()
	return nil
}

func (g *gate) open(id string) {
	close(g.ch(id))
}

func (g *gate) startedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.started...)
}

func job(id string, userID int64) *models.RenameJob {
	return &models.RenameJob{ID: id, UserID: userID, ChatID: userID, OriginalName: id + ".mkv"}
}

// recorder collects transitions so tests can wait on terminal states.
type recorder struct {
	mu     sync.Mutex
	status map[string]string
	order  []string
}

func newRecorder() *recorder {
	return &recorder{status: map[string]string{}}
}

func (r *recorder) observe(job models.RenameJob, _, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[job.ID] = to
	if models.IsTerminalJobStatus(to) {
		r.order = append(r.order, job.ID)
	}
}

func (r *recorder) get(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[id]
}

func (r *recorder) finished() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestEnqueue_SameUserRunsOneAtATime(t *testing.T) {
	g := newGate()
	rec := newRecorder()
	m := New(g, Options{Capacity: 4, OnTransition: rec.observe})

	pos, err := m.Enqueue(job("a1", 1))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = m.Enqueue(job("a2", 1))
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	require.Eventually(t, func() bool { return rec.get("a1") == models.JobStatusRunning }, time.Second, time.Millisecond)

	// The second job stays queued until the first finishes.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, models.JobStatusQueued, rec.get("a2"))
	assert.Equal(t, 2, m.UserPending(1))

	g.open("a1")
	require.Eventually(t, func() bool { return rec.get("a2") == models.JobStatusRunning }, time.Second, time.Millisecond)
	assert.Equal(t, models.JobStatusSucceeded, rec.get("a1"))

	g.open("a2")
	require.Eventually(t, func() bool { return m.Depth() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, m.UserPending(1))

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, 1, g.maxUser)
}

func TestEnqueue_FIFOPerUserUnderConcurrency(t *testing.T) {
	rec := newRecorder()
	var mu sync.Mutex
	perUser := map[int64][]string{}

	m := New(ProcessorFunc(func(_ context.Context, j *models.RenameJob) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		perUser[j.UserID] = append(perUser[j.UserID], j.ID)
		mu.Unlock()
		return nil
	}), Options{Capacity: 3, OnTransition: rec.observe})

	var wg sync.WaitGroup
	for u := int64(1); u <= 4; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			for _, id := range []string{"j1", "j2", "j3"} {
				_, err := m.Enqueue(job(id+"-"+string(rune('a'+u)), u))
				assert.NoError(t, err)
			}
		}(u)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(rec.finished()) == 12 }, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for u := int64(1); u <= 4; u++ {
		suffix := "-" + string(rune('a'+u))
		assert.Equal(t, []string{"j1" + suffix, "j2" + suffix, "j3" + suffix}, perUser[u])
	}
}

func TestEnqueue_PoolCapacityBoundsRunningJobs(t *testing.T) {
	g := newGate()
	rec := newRecorder()
	m := New(g, Options{Capacity: 2, OnTransition: rec.observe})

	var wg sync.WaitGroup
	ids := []string{"u1", "u2", "u3", "u4", "u5"}
	for i, id := range ids {
		wg.Add(1)
		go func(id string, userID int64) {
			defer wg.Done()
			_, err := m.Enqueue(job(id, userID))
			assert.NoError(t, err)
		}(id, int64(i+1))
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(g.startedIDs()) == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, g.startedIDs(), 2)
	assert.Equal(t, 5, m.Depth())

	for released := 0; released < len(ids); released++ {
		require.Eventually(t, func() bool { return len(g.startedIDs()) > released }, time.Second, time.Millisecond)
		g.open(g.startedIDs()[released])
	}

	require.Eventually(t, func() bool { return len(rec.finished()) == 5 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&g.maxTotal))
	for _, id := range ids {
		assert.Equal(t, models.JobStatusSucceeded, rec.get(id))
	}
}

func TestEnqueue_FailureRecordsKindAndContinues(t *testing.T) {
	rec := newRecorder()
	m := New(ProcessorFunc(func(_ context.Context, j *models.RenameJob) error {
		if j.ID == "bad" {
			return errcodes.Template(errors.New("unclosed {"))
		}
		if j.ID == "boom" {
			panic("kaboom")
		}
		return nil
	}), Options{Capacity: 1, OnTransition: rec.observe})

	for _, id := range []string{"bad", "boom", "good"} {
		_, err := m.Enqueue(job(id, 7))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(rec.finished()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"bad", "boom", "good"}, rec.finished())

	recent := m.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "good", recent[0].ID)
	assert.Equal(t, models.JobStatusSucceeded, recent[0].Status)
	assert.Equal(t, string(errcodes.KindInternal), recent[1].ErrorKind)
	assert.Equal(t, string(errcodes.KindTemplate), recent[2].ErrorKind)
	assert.NotNil(t, recent[2].FinishedAt)
}

func TestEnqueue_MaxPerUser(t *testing.T) {
	g := newGate()
	m := New(g, Options{Capacity: 1, MaxPerUser: 2})

	_, err := m.Enqueue(job("x1", 3))
	require.NoError(t, err)
	_, err = m.Enqueue(job("x2", 3))
	require.NoError(t, err)

	_, err = m.Enqueue(job("x3", 3))
	assert.ErrorIs(t, err, ErrQueueFull)

	// Other users are unaffected.
	_, err = m.Enqueue(job("y1", 4))
	assert.NoError(t, err)

	g.open("x1")
	g.open("x2")
	g.open("y1")
	require.Eventually(t, func() bool { return m.Depth() == 0 }, time.Second, time.Millisecond)
}

func TestEnqueue_AssignsID(t *testing.T) {
	m := New(ProcessorFunc(func(context.Context, *models.RenameJob) error { return nil }), Options{Capacity: 1})

	j := &models.RenameJob{UserID: 9}
	_, err := m.Enqueue(j)
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, models.JobStatusQueued, j.Status)
	assert.False(t, j.EnqueuedAt.IsZero())
}

func TestSnapshot_OldestFirst(t *testing.T) {
	g := newGate()
	m := New(g, Options{Capacity: 1})
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i, id := range []string{"s1", "s2", "s3"} {
		_, err := m.Enqueue(job(id, int64(i+1)))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return len(g.startedIDs()) == 1 }, time.Second, time.Millisecond)

	views := m.Snapshot()
	require.Len(t, views, 3)
	assert.Equal(t, []string{"s1", "s2", "s3"}, []string{views[0].ID, views[1].ID, views[2].ID})

	for _, id := range []string{"s1", "s2", "s3"} {
		g.open(id)
	}
	require.Eventually(t, func() bool { return m.Depth() == 0 }, time.Second, time.Millisecond)
}

func TestShutdown_RejectsNewJobsAndDropsWaiting(t *testing.T) {
	g := newGate()
	m := New(g, Options{Capacity: 1})

	_, err := m.Enqueue(job("r1", 1))
	require.NoError(t, err)
	_, err = m.Enqueue(job("r2", 2))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(g.startedIDs()) == 1 }, time.Second, time.Millisecond)
	running := g.startedIDs()[0]

	done := make(chan error, 1)
	go func() { done <- m.Shutdown(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := m.Enqueue(job("late", 3))
		return errors.Is(err, ErrShuttingDown)
	}, time.Second, time.Millisecond)

	g.open(running)
	require.NoError(t, <-done)
	assert.Len(t, g.startedIDs(), 1)
	assert.Equal(t, 0, m.Depth())
}

func TestShutdown_CancelsRunningJobsAfterDeadline(t *testing.T) {
	g := newGate()
	m := New(g, Options{Capacity: 1})

	_, err := m.Enqueue(job("stuck", 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(g.startedIDs()) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = m.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, m.Depth())
}

package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/sync/semaphore"
)

const recentLimit = 100

var (
	ErrQueueFull    = errors.New("too many files waiting for this user")
	ErrShuttingDown = errors.New("queue is shutting down")
)

type userState string

const (
	stateIdle        userState = "idle"
	stateDispatching userState = "dispatching"
	stateBusy        userState = "busy"
)

// Processor runs one job to completion. A returned error marks the job failed
// with the error's kind.
type Processor interface {
	Process(ctx context.Context, job *models.RenameJob) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job *models.RenameJob) error

func (f ProcessorFunc) Process(ctx context.Context, job *models.RenameJob) error {
	return f(ctx, job)
}

type Options struct {
	// Capacity bounds how many jobs run at once across all users.
	Capacity int
	// MaxPerUser bounds how many jobs one user may have waiting or running.
	// Zero means unbounded.
	MaxPerUser int
	// OnTransition is called with the manager's lock held whenever a job
	// changes status. It must not call back into the manager.
	OnTransition func(job models.RenameJob, from, to string)
}

type userQueue struct {
	state userState
	// jobs[0] is the job being dispatched or run while state is not idle.
	jobs []*models.RenameJob
}

// Manager keeps one FIFO per user and runs at most one job per user at a time,
// with a shared pool of Capacity slots across users.
type Manager struct {
	processor Processor
	opts      Options
	log       logger.Logger
	sem       *semaphore.Weighted
	now       func() time.Time

	mu     sync.Mutex
	users  map[int64]*userQueue
	recent []models.RenameJob
	closed bool

	acquireCtx    context.Context
	cancelAcquire context.CancelFunc
	runCtx        context.Context
	cancelRun     context.CancelFunc
	wg            sync.WaitGroup
}

func New(processor Processor, opts Options) *Manager {
	if opts.Capacity < 1 {
		opts.Capacity = 1
	}
	acquireCtx, cancelAcquire := context.WithCancel(context.Background())
	runCtx, cancelRun := context.WithCancel(context.Background())
	return &Manager{
		processor:     processor,
		opts:          opts,
		log:           logger.New(),
		sem:           semaphore.NewWeighted(int64(opts.Capacity)),
		now:           time.Now,
		users:         map[int64]*userQueue{},
		acquireCtx:    acquireCtx,
		cancelAcquire: cancelAcquire,
		runCtx:        runCtx,
		cancelRun:     cancelRun,
	}
}

// Enqueue appends job to its user's FIFO and returns its 1-based position in
// that FIFO. Position 1 means the job is dispatched right away.
func (m *Manager) Enqueue(job *models.RenameJob) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrShuttingDown
	}

	uq, ok := m.users[job.UserID]
	if !ok {
		uq = &userQueue{state: stateIdle}
		m.users[job.UserID] = uq
	}
	if m.opts.MaxPerUser > 0 && len(uq.jobs) >= m.opts.MaxPerUser {
		return 0, ErrQueueFull
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.EnqueuedAt = m.now()
	job.Status = models.JobStatusQueued

	// The manager owns its own copy so callers can keep reading theirs.
	queued := *job
	m.transition(&queued, "", models.JobStatusQueued)
	uq.jobs = append(uq.jobs, &queued)

	if uq.state == stateIdle {
		uq.state = stateDispatching
		m.wg.Add(1)
		go m.dispatch(job.UserID)
	}

	return len(uq.jobs), nil
}

// dispatch runs the user's FIFO head to tail. Exactly one dispatch goroutine
// exists per user while the user is not idle.
func (m *Manager) dispatch(userID int64) {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		job := m.users[userID].jobs[0]
		m.mu.Unlock()

		if err := m.sem.Acquire(m.acquireCtx, 1); err != nil {
			m.abandon(userID)
			return
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			m.sem.Release(1)
			m.abandon(userID)
			return
		}
		m.users[userID].state = stateBusy
		started := m.now()
		job.StartedAt = &started
		m.transition(job, models.JobStatusQueued, models.JobStatusRunning)
		snapshot := *job
		m.mu.Unlock()

		err := m.run(&snapshot)
		m.sem.Release(1)

		if !m.onJobComplete(userID, err) {
			return
		}
	}
}

func (m *Manager) run(job *models.RenameJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job panicked: %v", r)
		}
	}()
	return m.processor.Process(m.runCtx, job)
}

// onJobComplete records the head job's outcome and removes it. It reports
// whether another job is waiting, in which case the user stays dispatching.
func (m *Manager) onJobComplete(userID int64, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	uq := m.users[userID]
	job := uq.jobs[0]
	uq.jobs[0] = nil
	uq.jobs = uq.jobs[1:]

	finished := m.now()
	job.FinishedAt = &finished
	if err != nil {
		job.ErrorKind = string(errcodes.KindOf(err))
		m.transition(job, models.JobStatusRunning, models.JobStatusFailed)
	} else {
		m.transition(job, models.JobStatusRunning, models.JobStatusSucceeded)
	}
	m.remember(job)

	if len(uq.jobs) > 0 {
		uq.state = stateDispatching
		return true
	}
	uq.state = stateIdle
	delete(m.users, userID)
	return false
}

func (m *Manager) abandon(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uq := m.users[userID]
	if len(uq.jobs) > 0 {
		m.log.Warn("abandoning queued jobs", logger.Data{"user_id": userID, "count": len(uq.jobs)})
	}
	delete(m.users, userID)
}

func (m *Manager) transition(job *models.RenameJob, from, to string) {
	job.Status = to
	if m.opts.OnTransition != nil {
		m.opts.OnTransition(*job, from, to)
	}
}

func (m *Manager) remember(job *models.RenameJob) {
	m.recent = append(m.recent, *job)
	if len(m.recent) > recentLimit {
		m.recent = m.recent[len(m.recent)-recentLimit:]
	}
}

// Depth is the number of jobs queued or running across all users.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	depth := 0
	for _, uq := range m.users {
		depth += len(uq.jobs)
	}
	return depth
}

// UserPending is the number of jobs queued or running for one user.
func (m *Manager) UserPending(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uq, ok := m.users[userID]; ok {
		return len(uq.jobs)
	}
	return 0
}

// Snapshot copies every queued or running job, oldest first.
func (m *Manager) Snapshot() []models.RenameJob {
	m.mu.Lock()
	views := make([]models.RenameJob, 0)
	for _, uq := range m.users {
		for _, job := range uq.jobs {
			views = append(views, *job)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].EnqueuedAt.Before(views[j].EnqueuedAt)
	})
	return views
}

// Recent copies up to limit finished jobs, newest first.
func (m *Manager) Recent(limit int) []models.RenameJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.recent) {
		limit = len(m.recent)
	}
	views := make([]models.RenameJob, 0, limit)
	for i := len(m.recent) - 1; i >= 0 && len(views) < limit; i-- {
		views = append(views, m.recent[i])
	}
	return views
}

// Shutdown stops accepting jobs, drops jobs still waiting for a slot, and
// waits for running jobs to finish. If ctx ends first the running jobs are
// cancelled and ctx's error is returned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancelAcquire()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancelRun()
		return nil
	case <-ctx.Done():
		m.cancelRun()
		<-done
		return errors.WithStack(ctx.Err())
	}
}

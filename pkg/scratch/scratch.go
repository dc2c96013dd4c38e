package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/robinjoseph08/golib/logger"
)

const lockFilename = ".lock"

var ErrLocked = errors.New("scratch directory is in use by another instance")

// Manager hands out one private directory per job under a shared root.
type Manager struct {
	root string
	log  logger.Logger
	lock *flock.Flock

	mu     sync.Mutex
	active map[string]struct{}
}

func New(root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errcodes.Storage(errors.Wrapf(err, "failed to create scratch root %s", abs))
	}
	return &Manager{
		root:   abs,
		log:    logger.New(),
		lock:   flock.New(filepath.Join(abs, lockFilename)),
		active: map[string]struct{}{},
	}, nil
}

func (m *Manager) Root() string {
	return m.root
}

// Lock claims the scratch root for this process so that a second instance
// cannot sweep directories that are still in use.
func (m *Manager) Lock() error {
	locked, err := m.lock.TryLock()
	if err != nil {
		return errors.WithStack(err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

func (m *Manager) Unlock() error {
	return errors.WithStack(m.lock.Unlock())
}

// Acquire creates the job's directory. The caller must Release the returned
// Space on every exit path.
func (m *Manager) Acquire(jobID string) (*Space, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." || jobID == lockFilename {
		return nil, errcodes.Storage(errors.Errorf("invalid job id %q", jobID))
	}

	dir := filepath.Join(m.root, jobID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, errcodes.Storage(errors.Wrapf(err, "failed to create scratch dir for job %s", jobID))
	}

	m.mu.Lock()
	m.active[jobID] = struct{}{}
	m.mu.Unlock()

	return &Space{manager: m, id: jobID, dir: dir}, nil
}

// Active returns how many spaces are currently held.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// Sweep removes job directories older than maxAge that no running job holds.
// They are left behind only when the process died mid-job.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, errcodes.Storage(errors.WithStack(err))
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m.mu.Lock()
		_, inUse := m.active[entry.Name()]
		m.mu.Unlock()
		if inUse {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			m.log.Err(err).Warn("failed to remove stale scratch dir", logger.Data{"dir": entry.Name()})
			continue
		}
		removed++
	}
	return removed, nil
}

// StartSweeper runs Sweep on the given cron schedule until the returned cron
// is stopped.
func (m *Manager) StartSweeper(schedule string, maxAge time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		removed, err := m.Sweep(maxAge)
		if err != nil {
			m.log.Err(err).Error("scratch sweep error")
			return
		}
		if removed > 0 {
			m.log.Info("swept stale scratch dirs", logger.Data{"removed": removed})
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "invalid sweep schedule %q", schedule)
	}
	c.Start()
	return c, nil
}

// Space is a job's private scratch directory.
type Space struct {
	manager *Manager
	id      string
	dir     string

	once sync.Once
	err  error
}

func (s *Space) Dir() string {
	return s.dir
}

// Path returns a location for name inside the space. Directory components in
// name are dropped so that nothing escapes the space.
func (s *Space) Path(name string) string {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." || base == "" {
		base = "file"
	}
	return filepath.Join(s.dir, base)
}

// Release deletes the space and everything in it. It is safe to call more
// than once.
func (s *Space) Release() error {
	s.once.Do(func() {
		if err := os.RemoveAll(s.dir); err != nil {
			s.err = errcodes.Storage(errors.WithStack(err))
			return
		}
		s.manager.release(s.id)
	})
	return s.err
}

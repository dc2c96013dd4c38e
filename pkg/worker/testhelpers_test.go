package worker

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/autorenamer/autorenamer/pkg/config"
	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/migrations"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/autorenamer/autorenamer/pkg/scratch"
	"github.com/autorenamer/autorenamer/pkg/settings"
	"github.com/autorenamer/autorenamer/pkg/stats"
	"github.com/autorenamer/autorenamer/pkg/transport"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// testContext holds all the dependencies needed for testing the worker.
type testContext struct {
	t               *testing.T
	ctx             context.Context
	db              *bun.DB
	worker          *Worker
	client          *fakeClient
	scratch         *scratch.Manager
	settingsService *settings.Service
	statsService    *stats.Service
}

// newTestContext creates a new test context with an in-memory SQLite database,
// a scratch root in a temp dir, and a fake messaging client.
func newTestContext(t *testing.T) *testContext {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	cfg := config.NewForTest()
	cfg.ScratchDir = t.TempDir()
	cfg.UploadsPerHour = 0

	scratchManager, err := scratch.New(cfg.ScratchDir)
	require.NoError(t, err)

	client := newFakeClient()

	return &testContext{
		t:               t,
		ctx:             context.Background(),
		db:              db,
		worker:          New(cfg, db, client, scratchManager),
		client:          client,
		scratch:         scratchManager,
		settingsService: settings.NewService(db),
		statsService:    stats.NewService(db),
	}
}

func (tc *testContext) setCounter(userID, counter int64) {
	tc.t.Helper()
	_, err := tc.settingsService.Ensure(tc.ctx, userID, "tester")
	require.NoError(tc.t, err)
	_, err = tc.db.NewUpdate().
		Model((*models.UserSettings)(nil)).
		Set("counter = ?", counter).
		Where("user_id = ?", userID).
		Exec(tc.ctx)
	require.NoError(tc.t, err)
}

func (tc *testContext) counter(userID int64) int64 {
	tc.t.Helper()
	s, err := tc.settingsService.Get(tc.ctx, userID)
	require.NoError(tc.t, err)
	return s.Counter
}

// scratchEntries lists what is left in the scratch root, ignoring the lock.
func (tc *testContext) scratchEntries() []string {
	tc.t.Helper()
	entries, err := os.ReadDir(tc.scratch.Root())
	require.NoError(tc.t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// uploaded is what the fake platform saw for one upload, captured before the
// scratch space is released.
type uploaded struct {
	transport.Upload
	Name      string
	Contents  []byte
	Thumbnail []byte
}

type fakeClient struct {
	mu          sync.Mutex
	files       map[string][]byte
	downloads   []string
	uploadErr   error
	uploads     []uploaded
	messages    []transport.Message
	callbackIDs []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{files: map[string][]byte{}}
}

func (c *fakeClient) Download(_ context.Context, fileRef, dst string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads = append(c.downloads, fileRef)
	data, ok := c.files[fileRef]
	if !ok {
		return 0, errcodes.Transport(errors.Errorf("unknown file %s", fileRef))
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return 0, errcodes.Storage(errors.WithStack(err))
	}
	return int64(len(data)), nil
}

func (c *fakeClient) Upload(_ context.Context, upload transport.Upload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uploadErr != nil {
		return c.uploadErr
	}
	u := uploaded{Upload: upload, Name: filepath.Base(upload.Path)}
	u.Contents, _ = os.ReadFile(upload.Path)
	if upload.ThumbnailPath != "" {
		u.Thumbnail, _ = os.ReadFile(upload.ThumbnailPath)
	}
	c.uploads = append(c.uploads, u)
	return nil
}

func (c *fakeClient) Send(_ context.Context, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeClient) AnswerCallback(_ context.Context, callbackID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbackIDs = append(c.callbackIDs, callbackID)
	return nil
}

package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-analytics/internal/database"
)

type memoryObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (m *memoryObjectStore) Upload(_ context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if m.uploadErr != nil {
		return m.uploadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjectStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, SizeBytes: int64(len(data))})
		}
	}
	return out, nil
}

func (m *memoryObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjectStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newCacheDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "market_data.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	_, err = db.Conn().Exec(
		"INSERT INTO market_data_cache (cache_key, data, created_at, expires_at) VALUES (?, ?, ?, ?)",
		"history:AAPL:2024-01-01:2024-02-01", []byte{0x01}, time.Now().Unix(), time.Now().Add(time.Hour).Unix(),
	)
	require.NoError(t, err)
	return db
}

func TestCacheBackupService_UploadsCompressedSnapshot(t *testing.T) {
	db := newCacheDB(t)
	store := newMemoryObjectStore()
	service := NewCacheBackupService(db, store, "analytics/", 3, t.TempDir(), zerolog.Nop())
	service.now = func() time.Time { return time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC) }

	key, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "analytics/cache-20240315T123000Z-"), key)
	assert.True(t, strings.HasSuffix(key, ".db.gz"), key)

	gz, err := gzip.NewReader(bytes.NewReader(store.objects[key]))
	require.NoError(t, err)
	snapshot, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(snapshot, []byte("SQLite format 3\x00")))
}

func TestCacheBackupService_PrunesOldest(t *testing.T) {
	db := newCacheDB(t)
	store := newMemoryObjectStore()
	service := NewCacheBackupService(db, store, "analytics", 2, t.TempDir(), zerolog.Nop())

	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	var uploaded []string
	for day := 0; day < 4; day++ {
		now := base.AddDate(0, 0, day)
		service.now = func() time.Time { return now }
		key, err := service.Run(context.Background())
		require.NoError(t, err)
		uploaded = append(uploaded, key)
	}

	assert.Equal(t, []string{uploaded[2], uploaded[3]}, store.keys())

	listed, err := service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, uploaded[3], listed[0].Key)
}

func TestCacheBackupService_IgnoresForeignObjects(t *testing.T) {
	store := newMemoryObjectStore()
	store.objects["analytics/cache-notes.txt"] = []byte("x")
	store.objects["other/cache-20200101T000000Z-a.db.gz"] = []byte("x")
	service := NewCacheBackupService(nil, store, "analytics", 1, t.TempDir(), zerolog.Nop())

	listed, err := service.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listed)
	require.NoError(t, service.Prune(context.Background()))
	assert.Len(t, store.keys(), 2)
}

func TestCacheBackupService_UploadFailure(t *testing.T) {
	db := newCacheDB(t)
	store := newMemoryObjectStore()
	store.uploadErr = errors.New("bucket unreachable")
	service := NewCacheBackupService(db, store, "analytics", 2, t.TempDir(), zerolog.Nop())

	_, err := service.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
	assert.Empty(t, store.keys())
}

func TestCacheBackupJob(t *testing.T) {
	db := newCacheDB(t)
	store := newMemoryObjectStore()
	job := NewCacheBackupJob(NewCacheBackupService(db, store, "", 0, t.TempDir(), zerolog.Nop()))

	assert.Equal(t, "cache_backup", job.Name())
	require.NoError(t, job.Run())

	keys := store.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "cache-"))
}

// Package reliability uploads snapshots of the market data cache to
// S3-compatible object storage.
package reliability

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// snapshotTimeLayout sorts lexically in time order
const snapshotTimeLayout = "20060102T150405Z"

// Snapshotter writes a consistent copy of a database to a new file.
type Snapshotter interface {
	VacuumInto(ctx context.Context, dest string) error
}

// ObjectInfo describes one stored snapshot
type ObjectInfo struct {
	Key          string    `json:"key"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore is the subset of object storage used for snapshots
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// CacheBackupService snapshots, compresses and uploads the cache database,
// then prunes old snapshots.
type CacheBackupService struct {
	db       Snapshotter
	store    ObjectStore
	prefix   string
	retain   int
	stageDir string
	now      func() time.Time
	log      zerolog.Logger
}

// NewCacheBackupService creates a backup service. retain < 1 keeps every snapshot.
func NewCacheBackupService(db Snapshotter, store ObjectStore, prefix string, retain int, stageDir string, log zerolog.Logger) *CacheBackupService {
	return &CacheBackupService{
		db:       db,
		store:    store,
		prefix:   strings.Trim(prefix, "/"),
		retain:   retain,
		stageDir: stageDir,
		now:      time.Now,
		log:      log.With().Str("service", "cache_backup").Logger(),
	}
}

func (s *CacheBackupService) keyPrefix() string {
	if s.prefix == "" {
		return "cache-"
	}
	return s.prefix + "/cache-"
}

// Run uploads one snapshot and prunes the oldest beyond the retention count.
// It returns the uploaded key.
func (s *CacheBackupService) Run(ctx context.Context) (string, error) {
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp(s.stageDir, "cache-backup-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	snapshotPath := filepath.Join(stagingDir, "cache.db")
	if err := s.db.VacuumInto(ctx, snapshotPath); err != nil {
		return "", fmt.Errorf("failed to snapshot cache: %w", err)
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat snapshot: %w", err)
	}

	key := fmt.Sprintf("%s%s-%s.db.gz", s.keyPrefix(), s.now().UTC().Format(snapshotTimeLayout), uuid.NewString())
	if err := s.upload(ctx, key, snapshotPath); err != nil {
		return "", err
	}

	s.log.Info().
		Str("key", key).
		Int64("snapshot_bytes", info.Size()).
		Dur("duration", time.Since(startTime)).
		Msg("Cache snapshot uploaded")

	if err := s.Prune(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Snapshot pruning failed")
	}
	return key, nil
}

// upload streams the gzip-compressed file into the object store.
func (s *CacheBackupService) upload(ctx context.Context, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	go func() {
		gz := gzip.NewWriter(pw)
		if _, err := io.Copy(gz, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(gz.Close())
	}()

	if err := s.store.Upload(ctx, key, pr); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// List returns stored snapshots, newest first.
func (s *CacheBackupService) List(ctx context.Context) ([]ObjectInfo, error) {
	objects, err := s.store.List(ctx, s.keyPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	out := objects[:0]
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, ".db.gz") {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

// Prune deletes snapshots beyond the newest retain.
func (s *CacheBackupService) Prune(ctx context.Context) error {
	if s.retain < 1 {
		return nil
	}

	snapshots, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(snapshots) <= s.retain {
		return nil
	}

	deleted := 0
	for _, obj := range snapshots[s.retain:] {
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			s.log.Error().Err(err).Str("key", obj.Key).Msg("Failed to delete old snapshot")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(snapshots)-deleted).
		Msg("Snapshot rotation completed")
	return nil
}

// CacheBackupJob runs the backup service on a schedule.
type CacheBackupJob struct {
	service *CacheBackupService
	timeout time.Duration
}

// NewCacheBackupJob creates a scheduled backup job.
func NewCacheBackupJob(service *CacheBackupService) *CacheBackupJob {
	return &CacheBackupJob{service: service, timeout: 10 * time.Minute}
}

// Run executes one backup.
func (j *CacheBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	_, err := j.service.Run(ctx)
	return err
}

// Name returns the job name
func (j *CacheBackupJob) Name() string {
	return "cache_backup"
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

const (
	rootBucketName      = "resurrector"
	metaBucketName      = "meta"
	jobsBucketName      = "jobs"
	stageLogsBucketName = "stage_logs"

	schemaVersionKey = "schema_version"
	schemaVersion    = "1"
)

var ErrStoreClosed = errors.New("job store is closed")

// BoltStore persists jobs and their stage logs in a single-file bbolt
// database. Stage logs live in one nested bucket per job, keyed by a
// zero-padded sequence so iteration returns them in append order.
type BoltStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

func OpenBolt(path string) (*BoltStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	options := &bolt.Options{Timeout: time.Second}
	db, err := bolt.Open(trimmed, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("open job db: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, path: trimmed}, nil
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) CreateJob(ctx context.Context, job domain.Job) error {
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job id is required")
	}
	return s.update(func(tx *bolt.Tx) error {
		jobs, err := jobsBucket(tx)
		if err != nil {
			return err
		}
		if jobs.Get([]byte(job.ID)) != nil {
			return fmt.Errorf("%w: %s", domain.ErrJobExists, job.ID)
		}
		return putJob(jobs, job)
	})
}

func (s *BoltStore) GetJob(ctx context.Context, id string) (domain.Job, error) {
	var job domain.Job
	err := s.view(func(tx *bolt.Tx) error {
		jobs, err := jobsBucket(tx)
		if err != nil {
			return err
		}
		raw := jobs.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return json.Unmarshal(raw, &job)
	})
	return job, err
}

// UpdateJobStatus advances the persisted state machine. Completed and failed
// jobs are immutable: any further transition comes back ErrJobTerminal.
func (s *BoltStore) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus, stage domain.Stage, errMsg string) error {
	return s.update(func(tx *bolt.Tx) error {
		jobs, err := jobsBucket(tx)
		if err != nil {
			return err
		}
		raw := jobs.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		var job domain.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, job.Status)
		}
		job.Status = status
		if stage != "" {
			job.CurrentStage = stage
		}
		job.ErrorMessage = errMsg
		if status.IsTerminal() {
			now := time.Now().UTC()
			job.CompletedAt = &now
		}
		return putJob(jobs, job)
	})
}

func (s *BoltStore) AppendStageLog(ctx context.Context, entry domain.StageLogEntry) error {
	if strings.TrimSpace(entry.JobID) == "" {
		return errors.New("stage log job id is required")
	}
	return s.update(func(tx *bolt.Tx) error {
		logs, err := stageLogsBucket(tx)
		if err != nil {
			return err
		}
		jobLogs, err := logs.CreateBucketIfNotExists([]byte(entry.JobID))
		if err != nil {
			return fmt.Errorf("create stage log bucket: %w", err)
		}
		seq, err := jobLogs.NextSequence()
		if err != nil {
			return fmt.Errorf("next log sequence: %w", err)
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode stage log: %w", err)
		}
		return jobLogs.Put([]byte(fmt.Sprintf("%012d", seq)), raw)
	})
}

func (s *BoltStore) StageLog(ctx context.Context, jobID string) ([]domain.StageLogEntry, error) {
	var entries []domain.StageLogEntry
	err := s.view(func(tx *bolt.Tx) error {
		logs, err := stageLogsBucket(tx)
		if err != nil {
			return err
		}
		jobLogs := logs.Bucket([]byte(jobID))
		if jobLogs == nil {
			return nil
		}
		return jobLogs.ForEach(func(_, value []byte) error {
			var entry domain.StageLogEntry
			if err := json.Unmarshal(value, &entry); err != nil {
				return fmt.Errorf("decode stage log: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) ListJobs(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	err := s.view(func(tx *bolt.Tx) error {
		bucket, err := jobsBucket(tx)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(_, value []byte) error {
			var job domain.Job
			if err := json.Unmarshal(value, &job); err != nil {
				return fmt.Errorf("decode job: %w", err)
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *BoltStore) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *BoltStore) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(rootBucketName))
		if err != nil {
			return fmt.Errorf("create root bucket: %w", err)
		}
		meta, err := root.CreateBucketIfNotExists([]byte(metaBucketName))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if meta.Get([]byte(schemaVersionKey)) == nil {
			if err := meta.Put([]byte(schemaVersionKey), []byte(schemaVersion)); err != nil {
				return fmt.Errorf("write schema version: %w", err)
			}
		}
		if _, err := root.CreateBucketIfNotExists([]byte(jobsBucketName)); err != nil {
			return fmt.Errorf("create jobs bucket: %w", err)
		}
		if _, err := root.CreateBucketIfNotExists([]byte(stageLogsBucketName)); err != nil {
			return fmt.Errorf("create stage logs bucket: %w", err)
		}
		return nil
	})
}

func jobsBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(rootBucketName))
	if root == nil {
		return nil, errors.New("missing root bucket")
	}
	bucket := root.Bucket([]byte(jobsBucketName))
	if bucket == nil {
		return nil, errors.New("missing jobs bucket")
	}
	return bucket, nil
}

func stageLogsBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(rootBucketName))
	if root == nil {
		return nil, errors.New("missing root bucket")
	}
	bucket := root.Bucket([]byte(stageLogsBucketName))
	if bucket == nil {
		return nil, errors.New("missing stage logs bucket")
	}
	return bucket, nil
}

func putJob(bucket *bolt.Bucket, job domain.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return bucket.Put([]byte(job.ID), raw)
}

var _ domain.JobStore = (*BoltStore)(nil)

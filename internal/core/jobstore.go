package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/brave-intl/bat-contribution-engine/pkg/db/pagination"
)

// JobRecord is the durable row backing every resumable job, matching
// the job_state table.
type JobRecord struct {
	JobID       string         `gorm:"column:job_id;primaryKey" json:"job_id"`
	JobType     string         `gorm:"column:job_type;index" json:"job_type"`
	State       datatypes.JSON `gorm:"column:state" json:"state"`
	Error       sql.NullString `gorm:"column:error" json:"error,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	CompletedAt sql.NullTime   `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (JobRecord) TableName() string { return "job_state" }

// JobStore is the generic resumable-job runtime: it persists JobRecords and,
// at boot, reconstructs and resumes every non-terminal one via a registered
// Factory.
type JobStore struct {
	db        *gorm.DB
	logger    *zap.Logger
	factories map[string]Factory
}

// NewJobStore constructs a JobStore over an already-migrated gorm handle.
func NewJobStore(db *gorm.DB, logger *zap.Logger) *JobStore {
	return &JobStore{db: db, logger: logger, factories: make(map[string]Factory)}
}

// Register associates a job_type tag with the factory that reconstructs a
// Resumable from its persisted record. Called once per job package during
// fx.Invoke wiring.
func (s *JobStore) Register(jobType string, factory Factory) {
	s.factories[jobType] = factory
}

// InitializeJobState writes a new pending JobRecord and returns its id
// without starting the job, mirroring InitializeJobState<JobType>.
func (s *JobStore) InitializeJobState(ctx context.Context, jobType string, state any) (string, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	rec := JobRecord{
		JobID:     id,
		JobType:   jobType,
		State:     datatypes.JSON(raw),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", err
	}
	return id, nil
}

func (s *JobStore) saveState(ctx context.Context, jobID, jobType string, raw json.RawMessage) error {
	return s.db.WithContext(ctx).Model(&JobRecord{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{"state": datatypes.JSON(raw), "job_type": jobType}).Error
}

func (s *JobStore) markComplete(ctx context.Context, jobID, errMsg string) error {
	updates := map[string]any{"completed_at": time.Now().UTC()}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return s.db.WithContext(ctx).Model(&JobRecord{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
}

// Load fetches a single JobRecord by id, used by StartJob(id) and by the
// admin inspection endpoint.
func (s *JobStore) Load(ctx context.Context, jobID string) (JobRecord, error) {
	var rec JobRecord
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&rec).Error
	return rec, err
}

// PendingByType enumerates every non-terminal JobRecord of the given type,
// the query behind ResumeJobs<JobType>().
func (s *JobStore) PendingByType(ctx context.Context, jobType string) ([]JobRecord, error) {
	var recs []JobRecord
	err := s.db.WithContext(ctx).
		Where("job_type = ? AND completed_at IS NULL", jobType).
		Find(&recs).Error
	return recs, err
}

// ResumeJobs reconstructs and resumes every non-terminal JobRecord of
// jobType using its registered Factory. Invoked once per job type at
// process boot (fx.Invoke), after all types have Registered.
func (s *JobStore) ResumeJobs(ctx context.Context, jobType string) error {
	factory, ok := s.factories[jobType]
	if !ok {
		s.logger.Warn("no factory registered for job type", zap.String("job_type", jobType))
		return nil
	}
	recs, err := s.PendingByType(ctx, jobType)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		job, err := factory(rec)
		if err != nil {
			s.logger.Error("failed to reconstruct job state; skipping",
				zap.String("job_id", rec.JobID), zap.String("job_type", jobType), zap.Error(err))
			// Undecodable state does not reach this branch: factories return a
			// job whose Resume runs OnStateInvalid. A record whose factory
			// errors is left pending and not resumed.
			continue
		}
		s.logger.Info("resuming job", zap.String("job_id", rec.JobID), zap.String("job_type", jobType))
		go job.Resume(ctx)
	}
	return nil
}

// ListByType returns one page of JobRecords for jobType, newest first,
// backing the admin job-listing endpoint. page.Cursor is opaque, produced by
// pagination.EncodeCursor over the last row of the previous page.
func (s *JobStore) ListByType(ctx context.Context, jobType string, page pagination.Pagination) ([]JobRecord, *pagination.PageInfo, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}

	q := s.db.WithContext(ctx).
		Where("job_type = ?", jobType).
		Order("created_at DESC, job_id DESC").
		Limit(limit + 1)

	if page.Cursor != "" {
		cur, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, err
		}
		q = q.Where("(created_at, job_id) < (?, ?)", cur.CreatedAt, cur.ID)
	}

	var recs []JobRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, nil, err
	}

	info := pagination.BuildCursorPageInfo(recsToPointers(recs), int32(limit), func(r *JobRecord) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{CreatedAt: r.CreatedAt.Format(time.RFC3339Nano), ID: r.JobID})
		return c
	})
	if info.HasMore {
		recs = recs[:limit]
	}
	return recs, info, nil
}

func recsToPointers(recs []JobRecord) []*JobRecord {
	out := make([]*JobRecord, len(recs))
	for i := range recs {
		out[i] = &recs[i]
	}
	return out
}

// StartJob resumes a specific job by id, reconstructing it via the
// registered factory for its persisted job_type.
func (s *JobStore) StartJob(ctx context.Context, jobID string) error {
	rec, err := s.Load(ctx, jobID)
	if err != nil {
		return err
	}
	factory, ok := s.factories[rec.JobType]
	if !ok {
		return errUnknownJobType(rec.JobType)
	}
	job, err := factory(rec)
	if err != nil {
		return err
	}
	go job.Resume(ctx)
	return nil
}

type errUnknownJobType string

func (e errUnknownJobType) Error() string { return "core: unknown job type " + string(e) }

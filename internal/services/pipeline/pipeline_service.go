package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskhived/backend/internal/locker"
	"github.com/taskhived/backend/internal/models"
	"github.com/taskhived/backend/internal/realtime"
	"github.com/taskhived/backend/internal/retry"
	"github.com/taskhived/backend/internal/services/scoring"
)

// FallbackSummary is stored when the scoring vendor fails or returns garbage.
// Fail-safe, not fail-open: an uncertain verdict always routes to a human.
const FallbackSummary = "AI validation service unavailable, flagging for human review"

// Attachment is an optional file handed in with a submission.
type Attachment struct {
	Filename string
	Data     []byte
}

// FileStore is the subset of the storage collaborator the pipeline needs.
type FileStore interface {
	Put(ctx context.Context, path string, data []byte) (string, error)
}

type Service struct {
	DB     *gorm.DB
	Scorer scoring.Scorer
	Files  FileStore
	Locks  locker.TaskLocker
	Hub    *realtime.Hub
	Log    *zap.Logger

	Queue *Queue

	UploadTimeout  time.Duration
	ScoringTimeout time.Duration
	ScoringRetries int
}

func NewService(db *gorm.DB, scorer scoring.Scorer, files FileStore, locks locker.TaskLocker, hub *realtime.Hub, log *zap.Logger, queueSize int) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		DB:             db,
		Scorer:         scorer,
		Files:          files,
		Locks:          locks,
		Hub:            hub,
		Log:            log,
		UploadTimeout:  10 * time.Second,
		ScoringTimeout: 15 * time.Second,
		ScoringRetries: 2,
	}
	s.Queue = NewQueue(queueSize, s.ProcessScore, log)
	return s
}

// Submit hands in a worker's result for an assigned task. The row moves to
// "submitted" and the scoring decision happens asynchronously on the worker
// pool; the caller always gets a terminal confirmation regardless of how the
// AI pass will go.
func (s *Service) Submit(ctx context.Context, taskID, workerID uuid.UUID, comment string, att *Attachment) (*models.Task, error) {
	release, err := s.Locks.Acquire(ctx, taskID)
	if err != nil {
		if errors.Is(err, locker.ErrLocked) {
			return nil, models.ErrAlreadySubmitted
		}
		return nil, err
	}
	defer release()

	var task models.Task
	if err := s.DB.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, err
	}

	if task.WorkerID == nil || *task.WorkerID != workerID {
		return nil, models.ErrNotAssignedWorker
	}
	if task.Status.IsDecided() {
		return nil, models.ErrAlreadySubmitted
	}
	if task.Status != models.TaskStatusAssigned {
		return nil, models.ErrInvalidState
	}

	now := time.Now()
	timeTaken := int64(now.Sub(task.CreatedAt).Minutes())
	if timeTaken < 0 {
		timeTaken = 0 // clock skew
	}

	// Best-effort attachment: a storage failure is logged and the submission
	// carries on without a file.
	filePath := ""
	if att != nil && len(att.Data) > 0 {
		upCtx, cancel := context.WithTimeout(ctx, s.UploadTimeout)
		path := fmt.Sprintf("tasks/%s/%d_%s", task.ID, now.Unix(), filepath.Base(att.Filename))
		stored, err := s.Files.Put(upCtx, path, att.Data)
		cancel()
		if err != nil {
			s.Log.Warn("attachment store failed, continuing without file",
				zap.String("task_id", task.ID.String()), zap.Error(err))
		} else {
			filePath = stored
		}
	}

	res := s.DB.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ? AND version = ?",
			task.ID, models.TaskStatusAssigned, task.Version).
		Updates(map[string]interface{}{
			"status":          models.TaskStatusSubmitted,
			"submission_text": comment,
			"file_path":       filePath,
			"submitted_at":    now,
			"time_taken_min":  timeTaken,
			"version":         task.Version + 1,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Someone else transitioned the row between our read and write.
		return nil, models.ErrAlreadySubmitted
	}

	s.Queue.Enqueue(task.ID)

	if err := s.DB.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ProcessScore runs the AI pass for one submitted task and applies the
// decision policy. Called from the worker pool, and directly from tests.
func (s *Service) ProcessScore(ctx context.Context, taskID uuid.UUID) error {
	var task models.Task
	if err := s.DB.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return err
	}
	if task.Status != models.TaskStatusSubmitted {
		// Already decided by a faster worker or an admin; nothing to do.
		return nil
	}

	result, scoreErr := s.score(ctx, &task)

	now := time.Now()
	status := models.TaskStatusUnderReview
	updates := map[string]interface{}{
		"version": task.Version + 1,
	}
	if scoreErr != nil {
		// Fail-safe verdict. Score stays NULL so an admin can tell "vendor
		// never answered" from a genuine zero.
		updates["ai_summary"] = FallbackSummary
		updates["requires_human_review"] = true
	} else {
		updates["score"] = result.Score
		updates["ai_summary"] = result.Summary
		updates["requires_human_review"] = !result.Passed
		if result.Passed {
			status = models.TaskStatusCompleted
			updates["completed_at"] = now
		}
	}
	updates["status"] = status

	res := s.DB.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ? AND version = ?",
			task.ID, models.TaskStatusSubmitted, task.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrVersionConflict
	}

	if scoreErr == nil {
		s.Log.Info("submission scored",
			zap.String("task_id", task.ID.String()),
			zap.Float64("score", result.Score),
			zap.Bool("passed", result.Passed))
	}

	s.publish(&task, status)
	return nil
}

// score invokes the vendor with timeout+retry. An error means no usable
// verdict was obtained; the caller applies the fail-safe policy.
func (s *Service) score(ctx context.Context, task *models.Task) (*scoring.Result, error) {
	req := scoring.Request{
		Title:        task.Title,
		Description:  task.Description,
		Comment:      task.SubmissionText,
		TimeTakenMin: task.TimeTakenMin,
	}

	var out *scoring.Result
	err := retry.Do(ctx, retry.Options{
		Attempts: s.ScoringRetries + 1,
		Delay:    time.Second,
		OnRetry: func(attempt int, err error) {
			s.Log.Warn("scoring attempt failed",
				zap.String("task_id", task.ID.String()),
				zap.Int("attempt", attempt), zap.Error(err))
		},
	}, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.ScoringTimeout)
		defer cancel()
		var callErr error
		out, callErr = s.Scorer.Score(callCtx, req)
		return callErr
	})
	if err != nil {
		s.Log.Warn("scoring unavailable, routing to human review",
			zap.String("task_id", task.ID.String()), zap.Error(err))
		return nil, err
	}
	return out, nil
}

// Recover re-enqueues tasks stuck in "submitted", e.g. after a crash between
// the submit write and the scoring decision. Called once at boot.
func (s *Service) Recover(ctx context.Context) (int, error) {
	var ids []uuid.UUID
	err := s.DB.WithContext(ctx).Model(&models.Task{}).
		Where("status = ?", models.TaskStatusSubmitted).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.Queue.Enqueue(id)
	}
	if len(ids) > 0 {
		s.Log.Info("re-enqueued stuck submissions", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

func (s *Service) publish(task *models.Task, status models.TaskStatus) {
	if s.Hub == nil {
		return
	}
	workerID := uuid.Nil
	if task.WorkerID != nil {
		workerID = *task.WorkerID
	}
	s.Hub.SendToTask(task.ClientID, workerID, map[string]interface{}{
		"type":    "task_update",
		"task_id": task.ID.String(),
		"status":  status,
	})
}

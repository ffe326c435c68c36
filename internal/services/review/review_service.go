package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskhived/backend/internal/models"
	"github.com/taskhived/backend/internal/realtime"
	"github.com/taskhived/backend/internal/services/scoring"
)

// Service implements the human-gated verification step: an admin decides
// whether a completed or under_review task gets paid. Mutually exclusive with
// the automatic decision made at submission time.
type Service struct {
	DB     *gorm.DB
	Scorer scoring.Scorer
	Hub    *realtime.Hub
	Log    *zap.Logger

	// RescoreThreshold: an admin-triggered second AI pass verifies at
	// score >= threshold (out of 5) and rejects below it. This check is
	// separate from the submission-time pass/fail and wins when invoked.
	RescoreThreshold float64
	ScoringTimeout   time.Duration
}

func NewService(db *gorm.DB, scorer scoring.Scorer, hub *realtime.Hub, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		DB:               db,
		Scorer:           scorer,
		Hub:              hub,
		Log:              log,
		RescoreThreshold: 3,
		ScoringTimeout:   15 * time.Second,
	}
}

func (s *Service) loadReviewable(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := s.DB.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusCompleted && task.Status != models.TaskStatusUnderReview {
		return nil, models.ErrInvalidState
	}
	return &task, nil
}

// Approve authorizes payment: status=verified, payment_status=pending. Funds
// do not move here; the ledger step does that. Blocked when the worker has
// nowhere to receive a payout.
func (s *Service) Approve(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.loadReviewable(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.WorkerID == nil {
		return nil, models.ErrInvalidState
	}

	var worker models.User
	if err := s.DB.WithContext(ctx).First(&worker, "id = ?", *task.WorkerID).Error; err != nil {
		return nil, err
	}
	if !worker.HasPayoutDestination() {
		return nil, models.ErrPayoutDestinationMissing
	}

	return s.transition(ctx, task, models.TaskStatusVerified, models.PaymentStatusPending)
}

// Reject is terminal. No ledger entry is ever created for a rejected task.
func (s *Service) Reject(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.loadReviewable(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, task, models.TaskStatusRejected, models.PaymentStatusRejected)
}

// Rescore runs the optional second AI pass and applies the threshold policy.
// The later check overrides the submission-time verdict, but never a payout
// that already settled.
func (s *Service) Rescore(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := s.DB.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, err
	}
	if task.PaymentStatus == models.PaymentStatusPaid || task.PaymentStatus == models.PaymentStatusProcessing {
		return nil, models.ErrRescoreAfterPayout
	}
	switch task.Status {
	case models.TaskStatusCompleted, models.TaskStatusUnderReview, models.TaskStatusVerified:
	default:
		return nil, models.ErrInvalidState
	}

	callCtx, cancel := context.WithTimeout(ctx, s.ScoringTimeout)
	defer cancel()
	result, err := s.Scorer.Score(callCtx, scoring.Request{
		Title:        task.Title,
		Description:  task.Description,
		Comment:      task.SubmissionText,
		TimeTakenMin: task.TimeTakenMin,
	})
	if err != nil {
		// Unlike the submission pass there is no fail-safe rewrite here: the
		// admin asked for a fresh verdict and gets the error instead.
		return nil, err
	}

	updates := map[string]interface{}{
		"score":      result.Score,
		"ai_summary": result.Summary,
		"version":    task.Version + 1,
	}
	if result.Score >= s.RescoreThreshold {
		updates["status"] = models.TaskStatusVerified
		updates["payment_status"] = models.PaymentStatusPending
		updates["requires_human_review"] = false
	} else {
		updates["status"] = models.TaskStatusRejected
		updates["payment_status"] = models.PaymentStatusRejected
	}

	res := s.DB.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND version = ? AND payment_status NOT IN ?",
			task.ID, task.Version,
			[]models.PaymentStatus{models.PaymentStatusPaid, models.PaymentStatusProcessing}).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrVersionConflict
	}

	s.Log.Info("task re-scored",
		zap.String("task_id", task.ID.String()),
		zap.Float64("score", result.Score),
		zap.Float64("threshold", s.RescoreThreshold))

	return s.reload(ctx, task.ID)
}

// transition applies a single guarded UPDATE; zero rows means a concurrent
// writer won and the task keeps its prior state.
func (s *Service) transition(ctx context.Context, task *models.Task, status models.TaskStatus, payment models.PaymentStatus) (*models.Task, error) {
	res := s.DB.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND version = ? AND status IN ?",
			task.ID, task.Version,
			[]models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusUnderReview}).
		Updates(map[string]interface{}{
			"status":         status,
			"payment_status": payment,
			"version":        task.Version + 1,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrVersionConflict
	}

	s.Log.Info("verification decision",
		zap.String("task_id", task.ID.String()),
		zap.String("status", string(status)))

	if s.Hub != nil && task.WorkerID != nil {
		s.Hub.SendToTask(task.ClientID, *task.WorkerID, map[string]interface{}{
			"type":    "task_update",
			"task_id": task.ID.String(),
			"status":  status,
		})
	}

	return s.reload(ctx, task.ID)
}

func (s *Service) reload(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := s.DB.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

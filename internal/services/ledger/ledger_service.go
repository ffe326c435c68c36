package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/taskhived/backend/internal/models"
	"github.com/taskhived/backend/internal/realtime"
)

// Service owns every write to the transactions ledger and to the cached
// users.credits column. Nothing else in the codebase mutates either.
type Service struct {
	DB  *gorm.DB
	Log *zap.Logger

	// Hub is optional; when set, settled payouts are pushed to both parties.
	Hub *realtime.Hub
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{DB: db, Log: log}
}

// Deposit credits a client immediately (already-settled funds, e.g. a manual
// admin top-up). Checkout-driven deposits go through CreatePendingDeposit +
// CompleteDeposit instead.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount int64, metadata map[string]interface{}) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, errors.New("deposit amount must be greater than zero")
	}

	trx := models.Transaction{
		UserID:   userID,
		Amount:   amount,
		Type:     models.TrxDeposit,
		Status:   models.TrxStatusCompleted,
		Metadata: datatypes.JSONMap(metadata),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("credits", gorm.Expr("credits + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user not found for id %s", userID)
		}
		return tx.Create(&trx).Error
	})
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

// CreatePendingDeposit records a checkout session that has not settled yet.
// It does not touch the credits column.
func (s *Service) CreatePendingDeposit(ctx context.Context, userID uuid.UUID, amount int64, reference string, metadata map[string]interface{}) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, errors.New("deposit amount must be greater than zero")
	}

	trx := models.Transaction{
		UserID:    userID,
		Amount:    amount,
		Type:      models.TrxDeposit,
		Status:    models.TrxStatusPending,
		Reference: reference,
		Metadata:  datatypes.JSONMap(metadata),
	}
	if err := s.DB.WithContext(ctx).Create(&trx).Error; err != nil {
		return nil, err
	}
	return &trx, nil
}

// CompleteDeposit settles a pending deposit after the checkout vendor confirms
// payment. Safe to call twice: the second call finds no pending row and no-ops.
func (s *Service) CompleteDeposit(ctx context.Context, reference string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trx models.Transaction
		err := tx.Where("reference = ? AND type = ?", reference, models.TrxDeposit).
			First(&trx).Error
		if err != nil {
			return err
		}
		if trx.Status != models.TrxStatusPending {
			return nil
		}

		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", trx.ID, models.TrxStatusPending).
			Update("status", models.TrxStatusCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // another callback got here first
		}

		return tx.Model(&models.User{}).
			Where("id = ?", trx.UserID).
			Update("credits", gorm.Expr("credits + ?", trx.Amount)).Error
	})
}

// FailDeposit marks a pending deposit as failed (expired/cancelled checkout).
func (s *Service) FailDeposit(ctx context.Context, reference string) error {
	return s.DB.WithContext(ctx).Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", reference, models.TrxStatusPending).
		Update("status", models.TrxStatusFailed).Error
}

// PayWorker moves a verified task's payment from client to worker, exactly once.
//
// The pending→processing flip is the in-flight marker: of two concurrent
// callers only one affects a row, the loser gets ErrAlreadyPaid. The funds
// move in a single DB transaction, so a failure anywhere leaves no partial
// state, and the marker is put back to pending so the caller can retry.
func (s *Service) PayWorker(ctx context.Context, taskID uuid.UUID) (*models.Transaction, error) {
	var task models.Task
	if err := s.DB.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, err
	}

	switch {
	case task.PaymentStatus == models.PaymentStatusPaid,
		task.PaymentStatus == models.PaymentStatusProcessing:
		return nil, models.ErrAlreadyPaid
	case task.Status != models.TaskStatusVerified,
		task.PaymentStatus != models.PaymentStatusPending:
		return nil, models.ErrInvalidState
	case task.WorkerID == nil:
		return nil, models.ErrInvalidState
	}

	res := s.DB.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ? AND payment_status = ?",
			task.ID, models.TaskStatusVerified, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusProcessing,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrAlreadyPaid
	}

	trx := models.Transaction{
		UserID:      task.ClientID,
		RecipientID: task.WorkerID,
		TaskID:      &task.ID,
		Amount:      task.Payment,
		Currency:    task.Currency,
		Type:        models.TrxPayment,
		Status:      models.TrxStatusCompleted,
		Metadata:    datatypes.JSONMap{"task_title": task.Title},
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guarded decrement: affects zero rows when the client cannot cover it.
		res := tx.Model(&models.User{}).
			Where("id = ? AND credits >= ?", task.ClientID, task.Payment).
			Update("credits", gorm.Expr("credits - ?", task.Payment))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrInsufficientFunds
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", *task.WorkerID).
			Update("credits", gorm.Expr("credits + ?", task.Payment)).Error; err != nil {
			return err
		}

		if err := tx.Create(&trx).Error; err != nil {
			return err
		}

		return tx.Model(&models.Task{}).
			Where("id = ? AND payment_status = ?", task.ID, models.PaymentStatusProcessing).
			Updates(map[string]interface{}{
				"payment_status": models.PaymentStatusPaid,
				"version":        gorm.Expr("version + 1"),
			}).Error
	})
	if err != nil {
		// Put the marker back so the operation stays retryable.
		if revertErr := s.DB.WithContext(ctx).Model(&models.Task{}).
			Where("id = ? AND payment_status = ?", task.ID, models.PaymentStatusProcessing).
			Update("payment_status", models.PaymentStatusPending).Error; revertErr != nil {
			s.Log.Error("failed to revert payment marker",
				zap.String("task_id", task.ID.String()), zap.Error(revertErr))
		}
		return nil, err
	}

	s.Log.Info("task payout settled",
		zap.String("task_id", task.ID.String()),
		zap.String("client_id", task.ClientID.String()),
		zap.String("worker_id", task.WorkerID.String()),
		zap.Int64("amount", task.Payment))

	if s.Hub != nil {
		s.Hub.SendToTask(task.ClientID, *task.WorkerID, map[string]interface{}{
			"type":    "task_update",
			"task_id": task.ID.String(),
			"status":  models.TaskStatusVerified,
			"payment": "paid",
		})
	}

	return &trx, nil
}

// Withdraw deducts from a worker's balance and appends a withdrawal row.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount int64, metadata map[string]interface{}) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, errors.New("withdrawal amount must be greater than zero")
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	if !user.HasPayoutDestination() {
		return nil, models.ErrPayoutDestinationMissing
	}

	trx := models.Transaction{
		UserID:   userID,
		Amount:   amount,
		Type:     models.TrxWithdrawal,
		Status:   models.TrxStatusCompleted,
		Metadata: datatypes.JSONMap(metadata),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND credits >= ?", userID, amount).
			Update("credits", gorm.Expr("credits - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrInsufficientFunds
		}
		return tx.Create(&trx).Error
	})
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

// DerivedBalance recomputes a user's balance from the ledger alone:
// completed deposits + payments received − payments made − withdrawals.
func (s *Service) DerivedBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	type row struct{ Total int64 }

	sum := func(dst *int64, query string, args ...interface{}) error {
		var r row
		err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
			Select("COALESCE(SUM(amount), 0) AS total").
			Where("status = ?", models.TrxStatusCompleted).
			Where(query, args...).
			Scan(&r).Error
		*dst = r.Total
		return err
	}

	var deposits, received, paid, withdrawn int64
	if err := sum(&deposits, "user_id = ? AND type = ?", userID, models.TrxDeposit); err != nil {
		return 0, err
	}
	if err := sum(&received, "recipient_id = ? AND type = ?", userID, models.TrxPayment); err != nil {
		return 0, err
	}
	if err := sum(&paid, "user_id = ? AND type = ?", userID, models.TrxPayment); err != nil {
		return 0, err
	}
	if err := sum(&withdrawn, "user_id = ? AND type = ?", userID, models.TrxWithdrawal); err != nil {
		return 0, err
	}

	return deposits + received - paid - withdrawn, nil
}

// Reconcile rewrites every drifted credits column from the ledger. Returns the
// number of users fixed. Runs hourly via cron and on demand from the admin API.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Find(&users).Error; err != nil {
		return 0, err
	}

	fixed := 0
	for _, u := range users {
		derived, err := s.DerivedBalance(ctx, u.ID)
		if err != nil {
			return fixed, err
		}
		if derived == u.Credits {
			continue
		}

		s.Log.Warn("credits column drifted from ledger, rewriting",
			zap.String("user_id", u.ID.String()),
			zap.Int64("cached", u.Credits),
			zap.Int64("derived", derived))

		if err := s.DB.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", u.ID).
			Update("credits", derived).Error; err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

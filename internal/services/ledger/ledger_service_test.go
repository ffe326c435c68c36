package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taskhived/backend/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Task{}, &models.Transaction{}))
	return db
}

type fixture struct {
	svc    *Service
	db     *gorm.DB
	client *models.User
	worker *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)

	client := models.User{Name: "Client", Email: uuid.NewString() + "@c.test", Password: "x", Role: models.RoleClient}
	worker := models.User{
		Name: "Worker", Email: uuid.NewString() + "@w.test", Password: "x",
		Role: models.RoleWorker, WalletAddress: "0xworker",
	}
	require.NoError(t, db.Create(&client).Error)
	require.NoError(t, db.Create(&worker).Error)

	return &fixture{svc: NewService(db, nil), db: db, client: &client, worker: &worker}
}

func (f *fixture) verifiedTask(t *testing.T, payment int64) *models.Task {
	t.Helper()
	task := models.Task{
		Title:         "Design a logo",
		Payment:       payment,
		ClientID:      f.client.ID,
		WorkerID:      &f.worker.ID,
		Status:        models.TaskStatusVerified,
		PaymentStatus: models.PaymentStatusPending,
	}
	require.NoError(t, f.db.Create(&task).Error)
	return &task
}

func (f *fixture) credits(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, "id = ?", userID).Error)
	return u.Credits
}

func (f *fixture) paymentRows(t *testing.T, taskID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Transaction{}).
		Where("task_id = ? AND type = ?", taskID, models.TrxPayment).
		Count(&n).Error)
	return n
}

func TestDepositCreditsImmediately(t *testing.T) {
	f := setup(t)

	trx, err := f.svc.Deposit(context.Background(), f.client.ID, 5000, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TrxStatusCompleted, trx.Status)
	assert.NotEmpty(t, trx.Reference)
	assert.Equal(t, int64(5000), f.credits(t, f.client.ID))
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Deposit(context.Background(), f.client.ID, 0, nil)
	assert.Error(t, err)
	_, err = f.svc.Deposit(context.Background(), f.client.ID, -100, nil)
	assert.Error(t, err)
}

func TestPayWorkerMovesFundsExactlyOnce(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Deposit(context.Background(), f.client.ID, 5000, nil)
	require.NoError(t, err)
	task := f.verifiedTask(t, 1500)

	trx, err := f.svc.PayWorker(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, f.client.ID, trx.UserID)
	require.NotNil(t, trx.RecipientID)
	assert.Equal(t, f.worker.ID, *trx.RecipientID)
	assert.Equal(t, int64(1500), trx.Amount)

	assert.Equal(t, int64(3500), f.credits(t, f.client.ID))
	assert.Equal(t, int64(1500), f.credits(t, f.worker.ID))

	var after models.Task
	require.NoError(t, f.db.First(&after, "id = ?", task.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, after.PaymentStatus)

	// the second attempt must not create a second ledger row
	_, err = f.svc.PayWorker(context.Background(), task.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyPaid)
	assert.Equal(t, int64(1), f.paymentRows(t, task.ID))
	assert.Equal(t, int64(3500), f.credits(t, f.client.ID))
}

func TestPayWorkerInsufficientFundsIsRetryable(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Deposit(context.Background(), f.client.ID, 1000, nil)
	require.NoError(t, err)
	task := f.verifiedTask(t, 1500)

	_, err = f.svc.PayWorker(context.Background(), task.ID)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// nothing moved and the in-flight marker was rolled back
	assert.Equal(t, int64(1000), f.credits(t, f.client.ID))
	assert.Equal(t, int64(0), f.credits(t, f.worker.ID))
	assert.Zero(t, f.paymentRows(t, task.ID))

	var after models.Task
	require.NoError(t, f.db.First(&after, "id = ?", task.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, after.PaymentStatus)

	// a top-up makes the same call succeed
	_, err = f.svc.Deposit(context.Background(), f.client.ID, 1000, nil)
	require.NoError(t, err)
	_, err = f.svc.PayWorker(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), f.credits(t, f.client.ID))
}

func TestPayWorkerConcurrentCallsSettleOnce(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Deposit(context.Background(), f.client.ID, 5000, nil)
	require.NoError(t, err)
	task := f.verifiedTask(t, 1500)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PayWorker(context.Background(), task.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrAlreadyPaid)
	}
	assert.Equal(t, 1, succeeded)

	// one winner, one ledger row, funds moved once
	assert.Equal(t, int64(1), f.paymentRows(t, task.ID))
	assert.Equal(t, int64(3500), f.credits(t, f.client.ID))
	assert.Equal(t, int64(1500), f.credits(t, f.worker.ID))

	var after models.Task
	require.NoError(t, f.db.First(&after, "id = ?", task.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, after.PaymentStatus)
}

func TestPayWorkerRequiresVerifiedTask(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Deposit(context.Background(), f.client.ID, 5000, nil)
	require.NoError(t, err)

	task := models.Task{
		Title:    "Unapproved work",
		Payment:  1000,
		ClientID: f.client.ID,
		WorkerID: &f.worker.ID,
		Status:   models.TaskStatusCompleted,
	}
	require.NoError(t, f.db.Create(&task).Error)

	_, err = f.svc.PayWorker(context.Background(), task.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Zero(t, f.paymentRows(t, task.ID))
}

func TestDerivedBalanceMatchesCachedColumn(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Deposit(ctx, f.client.ID, 5000, nil)
	require.NoError(t, err)
	task := f.verifiedTask(t, 2000)
	_, err = f.svc.PayWorker(ctx, task.ID)
	require.NoError(t, err)
	_, err = f.svc.Withdraw(ctx, f.worker.ID, 500, nil)
	require.NoError(t, err)

	for _, u := range []*models.User{f.client, f.worker} {
		derived, err := f.svc.DerivedBalance(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, f.credits(t, u.ID), derived, "user %s", u.Email)
	}
}

func TestPendingDepositDoesNotCountTowardBalance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreatePendingDeposit(ctx, f.client.ID, 3000, "DEP-TEST1", nil)
	require.NoError(t, err)

	derived, err := f.svc.DerivedBalance(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Zero(t, derived)
	assert.Zero(t, f.credits(t, f.client.ID))
}

func TestCompleteDepositIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreatePendingDeposit(ctx, f.client.ID, 3000, "DEP-TEST2", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.CompleteDeposit(ctx, "DEP-TEST2"))
	require.NoError(t, f.svc.CompleteDeposit(ctx, "DEP-TEST2")) // duplicate callback

	assert.Equal(t, int64(3000), f.credits(t, f.client.ID))
}

func TestFailedDepositNeverCredits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreatePendingDeposit(ctx, f.client.ID, 3000, "DEP-TEST3", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.FailDeposit(ctx, "DEP-TEST3"))

	// a late PAID callback after the fail-mark must not credit
	require.NoError(t, f.svc.CompleteDeposit(ctx, "DEP-TEST3"))
	assert.Zero(t, f.credits(t, f.client.ID))
}

func TestWithdrawRequiresPayoutDestination(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Model(&models.User{}).
		Where("id = ?", f.worker.ID).
		Update("wallet_address", "").Error)

	_, err := f.svc.Withdraw(context.Background(), f.worker.ID, 100, nil)
	assert.ErrorIs(t, err, models.ErrPayoutDestinationMissing)
}

func TestWithdrawGuardsBalance(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Deposit(context.Background(), f.worker.ID, 400, nil)
	require.NoError(t, err)

	_, err = f.svc.Withdraw(context.Background(), f.worker.ID, 500, nil)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	assert.Equal(t, int64(400), f.credits(t, f.worker.ID))

	var rows int64
	f.db.Model(&models.Transaction{}).Where("type = ?", models.TrxWithdrawal).Count(&rows)
	assert.Zero(t, rows)
}

func TestReconcileFixesDriftedCredits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Deposit(ctx, f.client.ID, 5000, nil)
	require.NoError(t, err)

	// corrupt the cached column behind the ledger's back
	require.NoError(t, f.db.Model(&models.User{}).
		Where("id = ?", f.client.ID).
		Update("credits", 99999).Error)

	fixed, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	assert.Equal(t, int64(5000), f.credits(t, f.client.ID))

	// a second run finds nothing to do
	fixed, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

package models

import "errors"

// Pipeline and ledger error taxonomy. Handlers map these onto HTTP responses;
// services return them so tests can assert on errors.Is.
var (
	// ErrAlreadySubmitted: re-submission on a task that is already submitted
	// or decided. Recovered locally, not fatal.
	ErrAlreadySubmitted = errors.New("task already submitted")

	// ErrNotAssignedWorker: caller is not the worker assigned to the task.
	ErrNotAssignedWorker = errors.New("caller is not the assigned worker")

	// ErrPayoutDestinationMissing: approval blocked because the worker has no
	// wallet address or payout method configured.
	ErrPayoutDestinationMissing = errors.New("worker has no payout destination")

	// ErrInsufficientFunds: client's derived balance does not cover the task
	// payment. Retryable once funds are added.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyPaid: payout was already executed (or is in flight) for this task.
	ErrAlreadyPaid = errors.New("task already paid")

	// ErrInvalidState: the operation does not apply to the task's current
	// status, e.g. approving an open task or paying an unverified one.
	ErrInvalidState = errors.New("invalid task state for this operation")

	// ErrVersionConflict: a concurrent writer won the optimistic-lock race.
	// The whole operation is safely retryable.
	ErrVersionConflict = errors.New("task was modified concurrently")

	// ErrRescoreAfterPayout: a re-score cannot overturn a task whose payout
	// already settled.
	ErrRescoreAfterPayout = errors.New("cannot re-score a paid task")
)

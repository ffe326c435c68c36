package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusOpen        TaskStatus = "open"         // posted, waiting for a worker
	TaskStatusAssigned    TaskStatus = "assigned"     // claimed by a worker
	TaskStatusSubmitted   TaskStatus = "submitted"    // work handed in, waiting for the scoring worker
	TaskStatusCompleted   TaskStatus = "completed"    // AI pass succeeded, waiting for admin approval
	TaskStatusUnderReview TaskStatus = "under_review" // AI failed or was unavailable, needs a human
	TaskStatusVerified    TaskStatus = "verified"     // approved, payout authorized
	TaskStatusRejected    TaskStatus = "rejected"     // terminal, never paid
)

// IsDecided reports whether a submission has already gone through the pipeline.
// Re-submitting a task in any of these states fails with ErrAlreadySubmitted.
func (s TaskStatus) IsDecided() bool {
	switch s {
	case TaskStatusSubmitted, TaskStatusCompleted, TaskStatusUnderReview,
		TaskStatusVerified, TaskStatusRejected:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusNone       PaymentStatus = "none"
	PaymentStatusPending    PaymentStatus = "pending"    // approved, payout not executed yet
	PaymentStatusProcessing PaymentStatus = "processing" // payout in flight (idempotency marker)
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusRejected   PaymentStatus = "rejected"
)

type Task struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`

	// Payment is the amount owed to the worker on verification, in cents.
	Payment  int64      `gorm:"not null" json:"payment"`
	Currency string     `gorm:"type:varchar(10);default:'USD'" json:"currency"`
	ClientID uuid.UUID  `gorm:"type:uuid;index;not null" json:"client_id"`
	WorkerID *uuid.UUID `gorm:"type:uuid;index" json:"worker_id,omitempty"`

	Status        TaskStatus    `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null;default:'none'" json:"payment_status"`

	SubmissionText string `gorm:"type:text" json:"submission_text"`
	FilePath       string `gorm:"type:text" json:"file_path"`

	// Scoring result. Score stays nil until the AI pass (or a manual override)
	// has run; a task cannot reach completed without one.
	Score               *float64 `json:"score,omitempty"`
	AISummary           string   `gorm:"type:text" json:"ai_summary"`
	TimeTakenMin        int64    `json:"time_taken_min"`
	RequiresHumanReview bool     `gorm:"default:false" json:"requires_human_review"`

	// Version is the optimistic-concurrency token. Every state transition is a
	// single UPDATE predicated on the old version; a lost race affects zero rows.
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Client *User `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Worker *User `gorm:"foreignKey:WorkerID" json:"worker,omitempty"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

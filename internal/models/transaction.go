package models

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TrxType string

const (
	TrxDeposit    TrxType = "deposit"    // client tops up credits
	TrxPayment    TrxType = "payment"    // client -> worker for a verified task
	TrxWithdrawal TrxType = "withdrawal" // worker cashes out
)

type TrxStatus string

const (
	TrxStatusPending   TrxStatus = "pending"
	TrxStatusCompleted TrxStatus = "completed"
	TrxStatusFailed    TrxStatus = "failed"
)

// Transaction is an append-only ledger row. Rows are never updated after they
// reach a terminal status and never deleted; balances are derived by summing
// them. The users.credits column is only a cached projection.
type Transaction struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	RecipientID *uuid.UUID `gorm:"type:uuid;index" json:"recipient_id,omitempty"`

	// TaskID is set on payment rows only. The unique index is what makes a
	// double payout for the same task impossible at the storage layer.
	TaskID *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"task_id,omitempty"`

	Amount   int64  `gorm:"not null" json:"amount"` // cents, always positive
	Currency string `gorm:"type:varchar(10);default:'USD'" json:"currency"`

	Type      TrxType           `gorm:"type:varchar(20);not null;index" json:"type"`
	Status    TrxStatus         `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Reference string            `gorm:"type:varchar(50);uniqueIndex" json:"reference"` // checkout merchant ref
	Metadata  datatypes.JSONMap `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Reference == "" {
		t.Reference = "TRX-" + GenerateRefCode()
	}
	return
}

// GenerateRefCode generates a random alphanumeric code
func GenerateRefCode() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

type KYCStatus string

const (
	KYCNone     KYCStatus = "none"
	KYCPending  KYCStatus = "pending_verification"
	KYCVerified KYCStatus = "verified"
	KYCDeclined KYCStatus = "declined"
)

type User struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name  string    `gorm:"not null" json:"name"`
	Email string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone string    `gorm:"type:varchar(30)" json:"phone"`

	Password string `gorm:"not null" json:"-"`
	Role     Role   `gorm:"type:varchar(20);not null;index" json:"role"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Credits is a cached projection of the transactions ledger, in cents.
	// The ledger is the source of truth; the reconciler rewrites this column
	// whenever it drifts.
	Credits int64 `gorm:"not null;default:0" json:"credits"`

	WalletAddress string            `gorm:"type:varchar(120)" json:"wallet_address"`
	PayoutMethod  string            `gorm:"type:varchar(40)" json:"payout_method"` // bank_transfer / paypal / crypto
	PayoutDetails datatypes.JSONMap `json:"payout_details"`

	KYCStatus KYCStatus `gorm:"type:varchar(30);not null;default:'none'" json:"kyc_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}

// HasPayoutDestination reports whether the user can receive a payout.
// Task approval is blocked while this is false.
func (u *User) HasPayoutDestination() bool {
	return u.WalletAddress != "" || u.PayoutMethod != ""
}

// BadgeLevelFor maps a verified-task count to the badge shown on a worker profile.
func BadgeLevelFor(verifiedCount int64) string {
	switch {
	case verifiedCount >= 50:
		return "gold"
	case verifiedCount >= 20:
		return "silver"
	case verifiedCount >= 5:
		return "bronze"
	default:
		return "starter"
	}
}

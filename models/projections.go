package models

import (
	"time"

	"gorm.io/gorm"
)

// BookProjection is the read model for the catalog. Version is the version
// of the last event folded in; handlers only apply events with a higher one.
type BookProjection struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	AggregateID     string         `gorm:"uniqueIndex" json:"aggregate_id"`
	Version         int            `json:"version"`
	ISBN            string         `gorm:"index" json:"isbn"`
	Title           string         `json:"title"`
	Author          string         `json:"author"`
	Publisher       string         `json:"publisher"`
	PublicationYear int            `json:"publication_year"`
	PriceCents      int64          `json:"price_cents"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// ReservationProjection is the read model for loans. BookTitle is
// denormalized from the catalog so listings need no join.
type ReservationProjection struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	AggregateID      string         `gorm:"uniqueIndex" json:"aggregate_id"`
	Version          int            `json:"version"`
	BookID           string         `gorm:"index" json:"book_id"`
	BookTitle        string         `json:"book_title"`
	UserID           string         `gorm:"index" json:"user_id"`
	Status           string         `gorm:"index" json:"status"`
	FeeCents         int64          `json:"fee_cents"`
	RetailPriceCents int64          `json:"retail_price_cents"`
	LateFeeCents     int64          `json:"late_fee_cents"`
	DueDate          *time.Time     `json:"due_date"`
	ReturnedAt       *time.Time     `json:"returned_at"`
	PaymentReference *string        `json:"payment_reference"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// WalletProjection is the read model for balances. UserID is a plain index
// because a soft-deleted row lingers after the wallet is recreated; one live
// wallet per user is enforced at the command layer.
type WalletProjection struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	AggregateID  string         `gorm:"uniqueIndex" json:"aggregate_id"`
	Version      int            `json:"version"`
	UserID       string         `gorm:"index" json:"user_id"`
	BalanceCents int64          `json:"balance_cents"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// ReservationSaga tracks the payment flow of one reservation from the
// pending-payment signal to its completion or failure.
type ReservationSaga struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ReservationID    string     `gorm:"uniqueIndex" json:"reservation_id"`
	UserID           string     `gorm:"index" json:"user_id"`
	Status           string     `gorm:"index" json:"status"`
	AmountCents      int64      `json:"amount_cents"`
	PaymentReference *string    `json:"payment_reference"`
	PaymentMethod    *string    `json:"payment_method"`
	Error            *string    `json:"error"`
	StartedAt        time.Time  `json:"started_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Receipt tracks the async delivery of a sale's PDF receipt.
// Status machine: pending → generated (no email requested) or
// pending → sent / failed (after retries are exhausted).
type Receipt struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`

	Email   *string
	PDFPath *string

	Status string `gorm:"type:varchar(20);not null;default:'pending'"`

	// Retry bookkeeping consumed by the retry cron.
	RetryCount  int `gorm:"not null;default:0"`
	NextRetryAt *time.Time
	LastError   *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	ReceiptPending   = "pending"
	ReceiptGenerated = "generated"
	ReceiptSent      = "sent"
	ReceiptFailed    = "failed"
)

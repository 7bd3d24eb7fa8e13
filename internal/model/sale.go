package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is the persisted record of one completed checkout. It is written in
// the same transaction as its sale Movement, so a sale without a ledger entry
// (or the reverse) cannot exist.
type Sale struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TicketNumber int       `gorm:"uniqueIndex;not null"`
	SessionID    uuid.UUID `gorm:"type:uuid;not null;index"`
	OperatorID   uuid.UUID `gorm:"type:uuid;not null"`

	Subtotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	PaymentMethod PaymentMethod `gorm:"type:varchar(10);not null"`
	Status        string        `gorm:"type:varchar(20);not null;default:'completed'"`

	Items     []SaleItem `gorm:"foreignKey:SaleID"`
	CreatedAt time.Time
}

// SaleItem is one cart line frozen at checkout time. Product data arrives
// already resolved from the catalog (an external collaborator), so only the
// snapshot is stored.
type SaleItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID    uuid.UUID       `gorm:"type:uuid;index;not null"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null"`
	Name      string          `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Quantity  int             `gorm:"not null"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

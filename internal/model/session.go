package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidMovement is returned by the ledger when a movement carries a
// negative amount or an unrecognized type. The check runs before any write.
var ErrInvalidMovement = errors.New("invalid movement: negative amount or unknown type")

// SessionStatus: "open" | "closed"
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// MovementType is the tagged variant for ledger entries. Adding a new type
// here must be accompanied by a case in Label, which is deliberately
// exhaustive so an unhandled kind surfaces immediately.
type MovementType string

const (
	MovementOpening  MovementType = "opening"
	MovementClosing  MovementType = "closing"
	MovementSupply   MovementType = "supply"
	MovementWithdraw MovementType = "withdraw"
	MovementSale     MovementType = "sale"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementOpening, MovementClosing, MovementSupply, MovementWithdraw, MovementSale:
		return true
	}
	return false
}

// Label returns the human-readable name used on reports and receipts.
func (t MovementType) Label() string {
	switch t {
	case MovementOpening:
		return "Opening float"
	case MovementClosing:
		return "Session close"
	case MovementSupply:
		return "Cash supply"
	case MovementWithdraw:
		return "Cash withdraw"
	case MovementSale:
		return "Sale"
	default:
		return "Unknown"
	}
}

// PaymentMethod: "cash" | "credit" | "debit" | "pix"
// Only cash payments touch the drawer balance; the rest count toward daily
// sales only.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCredit PaymentMethod = "credit"
	PaymentDebit  PaymentMethod = "debit"
	PaymentPix    PaymentMethod = "pix"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCredit, PaymentDebit, PaymentPix:
		return true
	}
	return false
}

// Label returns the receipt-facing name of the payment method.
func (m PaymentMethod) Label() string {
	switch m {
	case PaymentCash:
		return "Cash"
	case PaymentCredit:
		return "Credit card"
	case PaymentDebit:
		return "Debit card"
	case PaymentPix:
		return "Pix"
	default:
		return "Unknown"
	}
}

// CashSession represents the lifecycle of one cash drawer session, from
// opening to the matching close. One open session per register at a time.
//
// Balance and DailySales are maintained incrementally: every mutation appends
// the corresponding Movement in the same transaction, so the ledger and the
// running balance can never disagree. The ledger listing is for display and
// audit only — the balance is never recomputed by replay.
type CashSession struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Register   int           `gorm:"not null;index"`
	OperatorID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Status     SessionStatus `gorm:"type:varchar(10);not null;default:'open'"`

	// OpeningAmount is the float declared at open time; Balance starts equal
	// to it and moves only through Movement application.
	OpeningAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Balance       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DailySales    decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	// LastSeq is the per-session movement sequence; ledger order is
	// (created_at, seq) so equal timestamps cannot reorder entries.
	LastSeq int `gorm:"not null;default:0"`

	OpenedAt time.Time
	ClosedAt *time.Time

	Movements []Movement `gorm:"foreignKey:SessionID"`
}

// Movement is an immutable event in the cash drawer ledger.
// Movements are NEVER modified or deleted once appended — the repository
// interface exposes no update or delete for them (compile-time guarantee).
type Movement struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID uuid.UUID    `gorm:"type:uuid;index;not null"`
	Seq       int          `gorm:"not null"`
	Type      MovementType `gorm:"type:varchar(10);not null"`
	// PaymentMethod is set only on sale movements.
	PaymentMethod *PaymentMethod  `gorm:"type:varchar(10)"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Description   string          `gorm:"not null"`
	// ReferenceID links to the originating Sale, when there is one.
	ReferenceID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time
}

// NextSeq advances and returns the session's movement sequence. Callers hold
// the per-session lock and persist the session in the same transaction as the
// movement.
func (s *CashSession) NextSeq() int {
	s.LastSeq++
	return s.LastSeq
}

// Validate enforces the ledger's own rules: non-negative amount and a known
// type. Business rules (session open, positive supply amounts, …) live in the
// service layer, not here.
func (m *Movement) Validate() error {
	if m.Amount.IsNegative() || !m.Type.Valid() {
		return ErrInvalidMovement
	}
	return nil
}

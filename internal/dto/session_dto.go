package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	Register      int             `json:"register"       validate:"required,min=1"`
	InitialAmount decimal.Decimal `json:"initial_amount" validate:"min=0"`
}

type SupplyRequest struct {
	Amount      decimal.Decimal `json:"amount"      validate:"required,gt=0"`
	Description string          `json:"description" validate:"omitempty,min=3"`
}

type WithdrawRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Reason string          `json:"reason" validate:"required,min=3"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type MovementResponse struct {
	ID            string          `json:"id"`
	Seq           int             `json:"seq"`
	Type          string          `json:"type"`
	TypeLabel     string          `json:"type_label"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ReferenceID   *string         `json:"reference_id,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

type BalanceResponse struct {
	SessionID  string          `json:"session_id"`
	Balance    decimal.Decimal `json:"balance"`
	MovementID string          `json:"movement_id"`
}

type SessionReportResponse struct {
	SessionID     string          `json:"session_id"`
	Register      int             `json:"register"`
	Status        string          `json:"status"`
	OpeningAmount decimal.Decimal `json:"opening_amount"`
	Balance       decimal.Decimal `json:"balance"`
	DailySales    decimal.Decimal `json:"daily_sales"`
	MovementCount int             `json:"movement_count"`
	OpenedAt      string          `json:"opened_at"`
	ClosedAt      *string         `json:"closed_at,omitempty"`
}

// CloseSessionResponse is the Z-report summary returned when a session closes.
type CloseSessionResponse struct {
	SessionID         string          `json:"session_id"`
	FinalBalance      decimal.Decimal `json:"final_balance"`
	ClosingMovementID string          `json:"closing_movement_id"`
	OpeningAmount     decimal.Decimal `json:"opening_amount"`
	TotalSupplies     decimal.Decimal `json:"total_supplies"`
	TotalWithdraws    decimal.Decimal `json:"total_withdraws"`
	CashSales         decimal.Decimal `json:"cash_sales"`
	DailySales        decimal.Decimal `json:"daily_sales"`
	SaleCount         int             `json:"sale_count"`
	ClosedAt          string          `json:"closed_at"`
}

type SessionHistoryResponse struct {
	Data  []SessionReportResponse `json:"data"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
}

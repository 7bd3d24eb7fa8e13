package dto

import "github.com/shopspring/decimal"

// ─── Cart DTOs ───────────────────────────────────────────────────────────────

// AddItemRequest carries an already-resolved product line: the catalog is an
// external collaborator, so name and unit price arrive with the request.
type AddItemRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Name      string          `json:"name"       validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"min=0"`
	Quantity  int             `json:"quantity"   validate:"omitempty,min=1"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type SetDiscountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"min=0"`
}

type CartItemResponse struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartResponse struct {
	Items    []CartItemResponse `json:"items"`
	Discount decimal.Decimal    `json:"discount"`
	Subtotal decimal.Decimal    `json:"subtotal"`
	Total    decimal.Decimal    `json:"total"`
}

// ─── Checkout DTOs ───────────────────────────────────────────────────────────

type CheckoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=cash credit debit pix"`
	// CustomerEmail: optional — when present, the receipt worker mails the PDF.
	CustomerEmail *string `json:"customer_email" validate:"omitempty,email"`
}

type CheckoutResponse struct {
	SaleID        string          `json:"sale_id"`
	TicketNumber  int             `json:"ticket_number"`
	MovementID    string          `json:"movement_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Balance       decimal.Decimal `json:"balance"`
	DailySales    decimal.Decimal `json:"daily_sales"`
}

// ─── Sale listing ────────────────────────────────────────────────────────────

// SaleFilter is bound from the query string of GET /v1/sales.
type SaleFilter struct {
	Date  string `form:"date"`            // YYYY-MM-DD; empty = today
	Page  int    `form:"page,default=1"   validate:"min=1"`
	Limit int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type SaleItemResponse struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type SaleResponse struct {
	ID            string             `json:"id"`
	TicketNumber  int                `json:"ticket_number"`
	SessionID     string             `json:"session_id"`
	Items         []SaleItemResponse `json:"items"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	Discount      decimal.Decimal    `json:"discount"`
	Total         decimal.Decimal    `json:"total"`
	PaymentMethod string             `json:"payment_method"`
	Status        string             `json:"status"`
	CreatedAt     string             `json:"created_at"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

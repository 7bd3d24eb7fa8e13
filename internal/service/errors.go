package service

import "errors"

// Domain error taxonomy. Handlers map these to HTTP statuses with errors.Is;
// none of them is fatal and none leaves the ledger or balance inconsistent.
var (
	// ErrSessionClosed rejects any mutating drawer operation while no session
	// is open. Recoverable: the operator opens the drawer and retries; the
	// triggering cart is left untouched.
	ErrSessionClosed = errors.New("no open cash session")

	// ErrSessionAlreadyOpen / ErrSessionAlreadyClosed flag redundant lifecycle
	// transitions. Informational — nothing is mutated.
	ErrSessionAlreadyOpen   = errors.New("a cash session is already open for this register")
	ErrSessionAlreadyClosed = errors.New("cash session is already closed")

	ErrSessionNotFound = errors.New("cash session not found")

	// ErrInvalidAmount rejects non-positive supply/withdraw amounts and
	// negative opening amounts or discounts, before any mutation.
	ErrInvalidAmount = errors.New("amount must not be negative")

	// ErrInsufficientBalance is returned by withdraw when negative balances
	// are disabled and the withdrawal would overdraw the drawer.
	ErrInsufficientBalance = errors.New("insufficient cash balance")

	ErrCartEmpty            = errors.New("cart is empty")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

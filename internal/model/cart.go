package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one line of an in-progress transaction. Product data is already
// resolved by the caller; the cart never talks to the catalog.
type CartItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Cart is the transient list of items being purchased before checkout.
// One cart per operator, serialized to Redis between requests and discarded
// after a successful checkout. It carries no concurrency guard: a cart is
// single-operator scratch state.
type Cart struct {
	OperatorID uuid.UUID       `json:"operator_id"`
	Items      []CartItem      `json:"items"`
	Discount   decimal.Decimal `json:"discount"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewCart returns an empty cart for the operator.
func NewCart(operatorID uuid.UUID) *Cart {
	return &Cart{OperatorID: operatorID, Discount: decimal.Zero}
}

// AddItem merges the item into the cart: an existing product line has its
// quantity incremented instead of a duplicate line being appended.
func (c *Cart) AddItem(item CartItem) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			return
		}
	}
	c.Items = append(c.Items, item)
}

// UpdateQuantity sets the quantity of a line; qty <= 0 removes the line.
func (c *Cart) UpdateQuantity(productID uuid.UUID, qty int) {
	if qty <= 0 {
		c.RemoveItem(productID)
		return
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = qty
			return
		}
	}
}

// RemoveItem drops the line for productID; unknown ids are a no-op.
func (c *Cart) RemoveItem(productID uuid.UUID) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

// SetDiscount replaces the flat discount amount. Callers validate
// non-negativity; Total clamps regardless of the discount size.
func (c *Cart) SetDiscount(amount decimal.Decimal) {
	c.Discount = amount
}

// Subtotal is Σ(unitPrice × quantity) over all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// Total is max(0, subtotal − discount); it never goes negative no matter how
// large the discount is.
func (c *Cart) Total() decimal.Decimal {
	total := c.Subtotal().Sub(c.Discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Clear empties items and discount, returning the cart to its initial state.
func (c *Cart) Clear() {
	c.Items = nil
	c.Discount = decimal.Zero
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

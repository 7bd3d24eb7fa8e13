package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func item(id uuid.UUID, name string, price string, qty int) CartItem {
	return CartItem{
		ProductID: id,
		Name:      name,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func TestCart_AddItemMergesByProduct(t *testing.T) {
	cart := NewCart(uuid.New())
	productID := uuid.New()

	cart.AddItem(item(productID, "Coffee", "3.50", 2))
	cart.AddItem(item(productID, "Coffee", "3.50", 1))

	assert.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.True(t, cart.Subtotal().Equal(decimal.RequireFromString("10.50")))
}

func TestCart_AddItemDefaultsQuantityToOne(t *testing.T) {
	cart := NewCart(uuid.New())
	cart.AddItem(item(uuid.New(), "Water", "1.00", 0))

	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestCart_UpdateQuantityZeroRemovesLine(t *testing.T) {
	cart := NewCart(uuid.New())
	productID := uuid.New()
	cart.AddItem(item(productID, "Coffee", "3.50", 2))
	cart.AddItem(item(uuid.New(), "Water", "1.00", 1))

	cart.UpdateQuantity(productID, 0)

	assert.Len(t, cart.Items, 1)
	assert.Equal(t, "Water", cart.Items[0].Name)

	cart.UpdateQuantity(cart.Items[0].ProductID, -3)
	assert.True(t, cart.IsEmpty())
}

func TestCart_UpdateQuantitySetsExactValue(t *testing.T) {
	cart := NewCart(uuid.New())
	productID := uuid.New()
	cart.AddItem(item(productID, "Coffee", "3.50", 2))

	cart.UpdateQuantity(productID, 5)

	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestCart_RemoveUnknownProductIsNoop(t *testing.T) {
	cart := NewCart(uuid.New())
	cart.AddItem(item(uuid.New(), "Coffee", "3.50", 1))

	cart.RemoveItem(uuid.New())

	assert.Len(t, cart.Items, 1)
}

func TestCart_TotalClampsToZero(t *testing.T) {
	cart := NewCart(uuid.New())
	cart.AddItem(item(uuid.New(), "Coffee", "3.50", 2))
	cart.SetDiscount(decimal.RequireFromString("100.00"))

	assert.True(t, cart.Total().IsZero())
	// Subtotal is unaffected by the discount
	assert.True(t, cart.Subtotal().Equal(decimal.RequireFromString("7.00")))
}

func TestCart_TotalAppliesFlatDiscount(t *testing.T) {
	cart := NewCart(uuid.New())
	cart.AddItem(item(uuid.New(), "Coffee", "3.50", 2))
	cart.AddItem(item(uuid.New(), "Water", "1.00", 3))
	cart.SetDiscount(decimal.RequireFromString("2.50"))

	assert.True(t, cart.Total().Equal(decimal.RequireFromString("7.50")))
}

func TestCart_ClearResetsState(t *testing.T) {
	cart := NewCart(uuid.New())
	cart.AddItem(item(uuid.New(), "Coffee", "3.50", 1))
	cart.SetDiscount(decimal.NewFromInt(1))

	cart.Clear()

	assert.True(t, cart.IsEmpty())
	assert.True(t, cart.Discount.IsZero())
}

func TestMovement_ValidateRejectsBadMovements(t *testing.T) {
	m := &Movement{Type: MovementSupply, Amount: decimal.NewFromInt(-5)}
	assert.ErrorIs(t, m.Validate(), ErrInvalidMovement)

	m = &Movement{Type: MovementType("refund"), Amount: decimal.NewFromInt(5)}
	assert.ErrorIs(t, m.Validate(), ErrInvalidMovement)

	m = &Movement{Type: MovementSale, Amount: decimal.NewFromInt(5)}
	assert.NoError(t, m.Validate())
}

package handler

import (
	"net/http"

	"tillpos/internal/apierror"
	"tillpos/internal/dto"
	"tillpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CheckoutHandler struct{ svc service.CheckoutService }

func NewCheckoutHandler(svc service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

// GetCart returns the operator's current cart (empty carts are valid).
func (h *CheckoutHandler) GetCart(c *gin.Context) {
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetCart(c.Request.Context(), operatorID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddItem godoc
// @Summary Adds (or merges) an item into the cart
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.AddItemRequest true "Item data"
// @Success 200 {object} dto.CartResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/cart/items [post]
func (h *CheckoutHandler) AddItem(c *gin.Context) {
	var req dto.AddItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.AddItem(c.Request.Context(), operatorID, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (h *CheckoutHandler) UpdateQuantity(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid product id"))
		return
	}
	var req dto.UpdateQuantityRequest
	if !bindAndValidate(c, &req) {
		return
	}
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.UpdateQuantity(c.Request.Context(), operatorID, productID, req.Quantity)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RemoveItem drops a line from the cart.
func (h *CheckoutHandler) RemoveItem(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid product id"))
		return
	}
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.RemoveItem(c.Request.Context(), operatorID, productID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SetDiscount sets the cart's flat discount.
func (h *CheckoutHandler) SetDiscount(c *gin.Context) {
	var req dto.SetDiscountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.SetDiscount(c.Request.Context(), operatorID, req.Amount)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ClearCart discards the operator's cart.
func (h *CheckoutHandler) ClearCart(c *gin.Context) {
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	if err := h.svc.ClearCart(c.Request.Context(), operatorID); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Checkout godoc
// @Summary Finalizes the cart as a sale against the open session
// @Tags checkout
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CheckoutRequest true "Payment data"
// @Success 201 {object} dto.CheckoutResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/checkout [post]
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if !bindAndValidate(c, &req) {
		return
	}
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.Checkout(c.Request.Context(), operatorID, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetSale returns one sale with its items.
func (h *CheckoutHandler) GetSale(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid sale id"))
		return
	}
	resp, err := h.svc.GetSale(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New("Sale not found"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListSales returns sales for a date (default today), paginated.
func (h *CheckoutHandler) ListSales(c *gin.Context) {
	var filter dto.SaleFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid query parameters"))
		return
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}
	resp, err := h.svc.ListSales(c.Request.Context(), filter)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

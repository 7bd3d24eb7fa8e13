package service

import (
	"context"
	"time"

	"tillpos/internal/dto"
	"tillpos/internal/model"
	"tillpos/internal/repository"
	"tillpos/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type CheckoutService interface {
	GetCart(ctx context.Context, operatorID uuid.UUID) (*dto.CartResponse, error)
	AddItem(ctx context.Context, operatorID uuid.UUID, req dto.AddItemRequest) (*dto.CartResponse, error)
	UpdateQuantity(ctx context.Context, operatorID, productID uuid.UUID, qty int) (*dto.CartResponse, error)
	RemoveItem(ctx context.Context, operatorID, productID uuid.UUID) (*dto.CartResponse, error)
	SetDiscount(ctx context.Context, operatorID uuid.UUID, amount decimal.Decimal) (*dto.CartResponse, error)
	ClearCart(ctx context.Context, operatorID uuid.UUID) error
	Checkout(ctx context.Context, operatorID uuid.UUID, req dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	GetSale(ctx context.Context, saleID uuid.UUID) (*dto.SaleResponse, error)
	ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error)
}

type checkoutService struct {
	carts      repository.CartRepository
	sales      repository.SaleRepository
	sessions   SessionService
	dispatcher *worker.Dispatcher
}

func NewCheckoutService(
	carts repository.CartRepository,
	sales repository.SaleRepository,
	sessions SessionService,
	dispatcher *worker.Dispatcher,
) CheckoutService {
	return &checkoutService{carts: carts, sales: sales, sessions: sessions, dispatcher: dispatcher}
}

// ── Cart operations ──────────────────────────────────────────────────────────

func (s *checkoutService) GetCart(ctx context.Context, operatorID uuid.UUID) (*dto.CartResponse, error) {
	cart, err := s.carts.Get(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	return cartToResponse(cart), nil
}

func (s *checkoutService) AddItem(ctx context.Context, operatorID uuid.UUID, req dto.AddItemRequest) (*dto.CartResponse, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, err
	}
	if req.UnitPrice.IsNegative() {
		return nil, ErrInvalidAmount
	}

	cart, err := s.carts.Get(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	cart.AddItem(model.CartItem{
		ProductID: productID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
	})
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cartToResponse(cart), nil
}

func (s *checkoutService) UpdateQuantity(ctx context.Context, operatorID, productID uuid.UUID, qty int) (*dto.CartResponse, error) {
	cart, err := s.carts.Get(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	cart.UpdateQuantity(productID, qty)
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cartToResponse(cart), nil
}

func (s *checkoutService) RemoveItem(ctx context.Context, operatorID, productID uuid.UUID) (*dto.CartResponse, error) {
	cart, err := s.carts.Get(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	cart.RemoveItem(productID)
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cartToResponse(cart), nil
}

func (s *checkoutService) SetDiscount(ctx context.Context, operatorID uuid.UUID, amount decimal.Decimal) (*dto.CartResponse, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	cart, err := s.carts.Get(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	cart.SetDiscount(amount)
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cartToResponse(cart), nil
}

func (s *checkoutService) ClearCart(ctx context.Context, operatorID uuid.UUID) error {
	return s.carts.Delete(ctx, operatorID)
}

// ── Checkout ─────────────────────────────────────────────────────────────────
// Builds the sale from the cart and hands it to the session service, which
// owns the transaction. The cart is cleared only after the sale committed; on
// any failure (closed session included) the cart is left intact so the
// operator can open a session and retry without re-scanning.

func (s *checkoutService) Checkout(ctx context.Context, operatorID uuid.UUID, req dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	method := model.PaymentMethod(req.PaymentMethod)
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	cart, err := s.carts.Get(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrCartEmpty
	}

	sale := saleFromCart(cart, method)

	mov, session, err := s.sessions.RecordSale(ctx, operatorID, sale)
	if err != nil {
		return nil, err
	}

	if err := s.carts.Delete(ctx, operatorID); err != nil {
		// The sale is committed; a stale cart is an annoyance, not corruption.
		log.Warn().Err(err).Str("operator_id", operatorID.String()).Msg("failed to clear cart after checkout")
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.EnqueueReceipt(ctx, worker.ReceiptJobPayload{
			SaleID:        sale.ID.String(),
			CustomerEmail: req.CustomerEmail,
		}); err != nil {
			log.Warn().Err(err).Str("sale_id", sale.ID.String()).Msg("failed to enqueue receipt")
		}
	}

	return &dto.CheckoutResponse{
		SaleID:        sale.ID.String(),
		TicketNumber:  sale.TicketNumber,
		MovementID:    mov.ID.String(),
		Subtotal:      sale.Subtotal,
		Discount:      sale.Discount,
		Total:         sale.Total,
		PaymentMethod: string(sale.PaymentMethod),
		Balance:       session.Balance,
		DailySales:    session.DailySales,
	}, nil
}

// ── Sale queries ─────────────────────────────────────────────────────────────

func (s *checkoutService) GetSale(ctx context.Context, saleID uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	resp := saleToResponse(sale)
	return &resp, nil
}

func (s *checkoutService) ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	sales, total, err := s.sales.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	data := make([]dto.SaleResponse, 0, len(sales))
	for i := range sales {
		data = append(data, saleToResponse(&sales[i]))
	}
	return &dto.SaleListResponse{Data: data, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// saleFromCart freezes the cart into an unsaved Sale. Line subtotals and the
// clamped total are computed here; the session service fills ticket number,
// session and operator when it persists.
func saleFromCart(cart *model.Cart, method model.PaymentMethod) *model.Sale {
	items := make([]model.SaleItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, model.SaleItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	return &model.Sale{
		Subtotal:      cart.Subtotal(),
		Discount:      cart.Discount,
		Total:         cart.Total(),
		PaymentMethod: method,
		Status:        "completed",
		Items:         items,
	}
}

func cartToResponse(cart *model.Cart) *dto.CartResponse {
	items := make([]dto.CartItemResponse, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, dto.CartItemResponse{
			ProductID: it.ProductID.String(),
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	return &dto.CartResponse{
		Items:    items,
		Discount: cart.Discount,
		Subtotal: cart.Subtotal(),
		Total:    cart.Total(),
	}
}

func saleToResponse(sale *model.Sale) dto.SaleResponse {
	items := make([]dto.SaleItemResponse, 0, len(sale.Items))
	for _, it := range sale.Items {
		items = append(items, dto.SaleItemResponse{
			ProductID: it.ProductID.String(),
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		})
	}
	return dto.SaleResponse{
		ID:            sale.ID.String(),
		TicketNumber:  sale.TicketNumber,
		SessionID:     sale.SessionID.String(),
		Items:         items,
		Subtotal:      sale.Subtotal,
		Discount:      sale.Discount,
		Total:         sale.Total,
		PaymentMethod: string(sale.PaymentMethod),
		Status:        sale.Status,
		CreatedAt:     sale.CreatedAt.Format(time.RFC3339),
	}
}

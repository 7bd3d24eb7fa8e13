package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tillpos/internal/dto"
	"tillpos/internal/model"
	"tillpos/internal/repository"
	"tillpos/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SessionService interface {
	Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionReportResponse, error)
	Close(ctx context.Context, operatorID uuid.UUID) (*dto.CloseSessionResponse, error)
	Supply(ctx context.Context, operatorID uuid.UUID, req dto.SupplyRequest) (*dto.BalanceResponse, error)
	Withdraw(ctx context.Context, operatorID uuid.UUID, req dto.WithdrawRequest) (*dto.BalanceResponse, error)
	// RecordSale persists the sale row, appends the sale movement and adjusts
	// balance/dailySales in one transaction. Called by CheckoutService.
	RecordSale(ctx context.Context, operatorID uuid.UUID, sale *model.Sale) (*model.Movement, *model.CashSession, error)
	Active(ctx context.Context, operatorID uuid.UUID) (*dto.SessionReportResponse, error)
	Ledger(ctx context.Context, sessionID uuid.UUID) ([]dto.MovementResponse, error)
	History(ctx context.Context, page, limit int) (*dto.SessionHistoryResponse, error)
}

// sessionLocks serializes mutations per lock key (register for opens, session
// id for everything else). Every drawer operation reads-then-writes the
// balance and the ledger tail, so a single writer per session is mandatory.
// Entries are refcounted: the last release deletes the map entry, so the map
// does not keep one mutex per closed session for the life of the process.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// acquire locks the mutex for key and returns its release func.
func (l *sessionLocks) acquire(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &sessionLock{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

type sessionService struct {
	repo                 repository.SessionRepository
	sales                repository.SaleRepository
	dispatcher           *worker.Dispatcher
	locks                *sessionLocks
	allowNegativeBalance bool
}

func NewSessionService(
	repo repository.SessionRepository,
	sales repository.SaleRepository,
	dispatcher *worker.Dispatcher,
	allowNegativeBalance bool,
) SessionService {
	return &sessionService{
		repo:                 repo,
		sales:                sales,
		dispatcher:           dispatcher,
		locks:                newSessionLocks(),
		allowNegativeBalance: allowNegativeBalance,
	}
}

// ── Open ─────────────────────────────────────────────────────────────────────

func (s *sessionService) Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionReportResponse, error) {
	release := s.locks.acquire(fmt.Sprintf("register:%d", req.Register))
	defer release()

	if req.InitialAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	// Guard: no duplicate open session per register
	if existing, err := s.repo.FindOpenByRegister(ctx, req.Register); err == nil && existing != nil {
		return nil, ErrSessionAlreadyOpen
	}

	session := &model.CashSession{
		Register:      req.Register,
		OperatorID:    operatorID,
		Status:        model.SessionOpen,
		OpeningAmount: req.InitialAmount,
		Balance:       req.InitialAmount,
		DailySales:    decimal.Zero,
		OpenedAt:      time.Now(),
	}
	// Session row and opening movement commit together: a failed append rolls
	// the whole open back, so the register is never stuck behind a session
	// whose ledger is missing its opening entry.
	txErr := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateSessionTx(tx, session); err != nil {
			return err
		}
		mov := &model.Movement{
			SessionID:   session.ID,
			Seq:         session.NextSeq(),
			Type:        model.MovementOpening,
			Amount:      req.InitialAmount,
			Description: model.MovementOpening.Label(),
		}
		if err := s.repo.AppendMovementTx(tx, mov); err != nil {
			return err
		}
		return s.repo.SaveSessionTx(tx, session)
	})
	if txErr != nil {
		return nil, txErr
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Int("register", req.Register).
		Str("opening_amount", req.InitialAmount.String()).
		Msg("cash session opened")

	return sessionToReport(session, 1), nil
}

// ── Close ────────────────────────────────────────────────────────────────────
// Appends a closing movement snapshotting the final balance and returns the
// Z-report summary. The session transitions back to Closed; a new one may be
// opened afterwards.

func (s *sessionService) Close(ctx context.Context, operatorID uuid.UUID) (*dto.CloseSessionResponse, error) {
	session, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil || session == nil {
		return nil, ErrSessionAlreadyClosed
	}

	release := s.locks.acquire(session.ID.String())
	defer release()

	// Re-read under the lock: a concurrent close may have won.
	session, err = s.repo.FindByID(ctx, session.ID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if session.Status != model.SessionOpen {
		return nil, ErrSessionAlreadyClosed
	}

	now := time.Now()
	var closing *model.Movement

	txErr := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		closing = &model.Movement{
			SessionID:   session.ID,
			Seq:         session.NextSeq(),
			Type:        model.MovementClosing,
			Amount:      session.Balance,
			Description: model.MovementClosing.Label(),
		}
		if err := s.repo.AppendMovementTx(tx, closing); err != nil {
			return err
		}
		session.Status = model.SessionClosed
		session.ClosedAt = &now
		return s.repo.SaveSessionTx(tx, session)
	})
	if txErr != nil {
		return nil, txErr
	}

	movements, err := s.repo.ListMovements(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	resp := buildZReport(session, closing, movements, now)

	// Async Z-report PDF — best-effort, fire & forget
	if s.dispatcher != nil {
		if err := s.dispatcher.EnqueueSessionReport(ctx, worker.SessionReportJobPayload{
			SessionID: session.ID.String(),
		}); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("failed to enqueue session report")
		}
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("final_balance", session.Balance.String()).
		Msg("cash session closed")

	return resp, nil
}

// ── Supply ───────────────────────────────────────────────────────────────────

func (s *sessionService) Supply(ctx context.Context, operatorID uuid.UUID, req dto.SupplyRequest) (*dto.BalanceResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	description := req.Description
	if description == "" {
		description = model.MovementSupply.Label()
	}

	return s.applyMovement(ctx, operatorID, model.MovementSupply, req.Amount, description,
		func(session *model.CashSession) error {
			session.Balance = session.Balance.Add(req.Amount)
			return nil
		})
}

// ── Withdraw ─────────────────────────────────────────────────────────────────
// "Sangria": cash removed from the drawer outside of closing.

func (s *sessionService) Withdraw(ctx context.Context, operatorID uuid.UUID, req dto.WithdrawRequest) (*dto.BalanceResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	return s.applyMovement(ctx, operatorID, model.MovementWithdraw, req.Amount,
		fmt.Sprintf("Sangria: %s", req.Reason),
		func(session *model.CashSession) error {
			next := session.Balance.Sub(req.Amount)
			if next.IsNegative() && !s.allowNegativeBalance {
				return ErrInsufficientBalance
			}
			session.Balance = next
			return nil
		})
}

// applyMovement runs the shared open-session mutation path: lock, guard,
// mutate balance, append movement and save the session atomically.
func (s *sessionService) applyMovement(
	ctx context.Context,
	operatorID uuid.UUID,
	movType model.MovementType,
	amount decimal.Decimal,
	description string,
	mutate func(*model.CashSession) error,
) (*dto.BalanceResponse, error) {
	session, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil || session == nil {
		return nil, ErrSessionClosed
	}

	release := s.locks.acquire(session.ID.String())
	defer release()

	session, err = s.repo.FindByID(ctx, session.ID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if session.Status != model.SessionOpen {
		return nil, ErrSessionClosed
	}

	if err := mutate(session); err != nil {
		return nil, err
	}

	mov := &model.Movement{
		SessionID:   session.ID,
		Seq:         session.NextSeq(),
		Type:        movType,
		Amount:      amount,
		Description: description,
	}
	txErr := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.AppendMovementTx(tx, mov); err != nil {
			return err
		}
		return s.repo.SaveSessionTx(tx, session)
	})
	if txErr != nil {
		return nil, txErr
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("type", string(movType)).
		Str("amount", amount.String()).
		Str("balance", session.Balance.String()).
		Msg("cash movement recorded")

	return &dto.BalanceResponse{
		SessionID:  session.ID.String(),
		Balance:    session.Balance,
		MovementID: mov.ID.String(),
	}, nil
}

// ── RecordSale ───────────────────────────────────────────────────────────────
// ACID path shared with checkout:
//  1. Validate an open session exists for the operator
//  2. BEGIN TX: nextval ticket, create sale+items, append sale movement,
//     bump dailySales (and balance for cash), save session
//  3. COMMIT
//
// Partial application — movement without the balance reflecting it, or a sale
// row without its ledger entry — cannot be observed.

func (s *sessionService) RecordSale(ctx context.Context, operatorID uuid.UUID, sale *model.Sale) (*model.Movement, *model.CashSession, error) {
	if !sale.PaymentMethod.Valid() {
		return nil, nil, ErrInvalidPaymentMethod
	}
	if sale.Total.IsNegative() {
		return nil, nil, ErrInvalidAmount
	}

	session, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil || session == nil {
		return nil, nil, ErrSessionClosed
	}

	release := s.locks.acquire(session.ID.String())
	defer release()

	session, err = s.repo.FindByID(ctx, session.ID)
	if err != nil {
		return nil, nil, ErrSessionNotFound
	}
	if session.Status != model.SessionOpen {
		return nil, nil, ErrSessionClosed
	}

	var mov *model.Movement
	txErr := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		ticket, err := s.sales.NextTicketNumberTx(tx)
		if err != nil {
			return err
		}
		sale.TicketNumber = ticket
		sale.SessionID = session.ID
		sale.OperatorID = operatorID
		if err := s.sales.CreateTx(tx, sale); err != nil {
			return err
		}

		session.DailySales = session.DailySales.Add(sale.Total)
		if sale.PaymentMethod == model.PaymentCash {
			session.Balance = session.Balance.Add(sale.Total)
		}

		method := sale.PaymentMethod
		mov = &model.Movement{
			SessionID:     session.ID,
			Seq:           session.NextSeq(),
			Type:          model.MovementSale,
			PaymentMethod: &method,
			Amount:        sale.Total,
			Description:   fmt.Sprintf("Sale #%d (%s)", ticket, method.Label()),
			ReferenceID:   &sale.ID,
		}
		if err := s.repo.AppendMovementTx(tx, mov); err != nil {
			return err
		}
		return s.repo.SaveSessionTx(tx, session)
	})
	if txErr != nil {
		return nil, nil, txErr
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Int("ticket", sale.TicketNumber).
		Str("total", sale.Total.String()).
		Str("method", string(sale.PaymentMethod)).
		Msg("sale recorded")

	return mov, session, nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *sessionService) Active(ctx context.Context, operatorID uuid.UUID) (*dto.SessionReportResponse, error) {
	session, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil || session == nil {
		return nil, ErrSessionClosed
	}
	return sessionToReport(session, session.LastSeq), nil
}

// Ledger returns the insertion-ordered movement list for display and audit.
// It is never used to recompute the balance.
func (s *sessionService) Ledger(ctx context.Context, sessionID uuid.UUID) ([]dto.MovementResponse, error) {
	if _, err := s.repo.FindByID(ctx, sessionID); err != nil {
		return nil, ErrSessionNotFound
	}
	movements, err := s.repo.ListMovements(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.MovementResponse, 0, len(movements))
	for _, m := range movements {
		resp = append(resp, movementToResponse(m))
	}
	return resp, nil
}

func (s *sessionService) History(ctx context.Context, page, limit int) (*dto.SessionHistoryResponse, error) {
	sessions, total, err := s.repo.ListClosed(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	data := make([]dto.SessionReportResponse, 0, len(sessions))
	for i := range sessions {
		data = append(data, *sessionToReport(&sessions[i], sessions[i].LastSeq))
	}
	return &dto.SessionHistoryResponse{Data: data, Total: total, Page: page, Limit: limit}, nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func buildZReport(session *model.CashSession, closing *model.Movement, movements []model.Movement, closedAt time.Time) *dto.CloseSessionResponse {
	supplies, withdraws, cashSales := decimal.Zero, decimal.Zero, decimal.Zero
	saleCount := 0
	for _, m := range movements {
		switch m.Type {
		case model.MovementSupply:
			supplies = supplies.Add(m.Amount)
		case model.MovementWithdraw:
			withdraws = withdraws.Add(m.Amount)
		case model.MovementSale:
			saleCount++
			if m.PaymentMethod != nil && *m.PaymentMethod == model.PaymentCash {
				cashSales = cashSales.Add(m.Amount)
			}
		}
	}
	return &dto.CloseSessionResponse{
		SessionID:         session.ID.String(),
		FinalBalance:      session.Balance,
		ClosingMovementID: closing.ID.String(),
		OpeningAmount:     session.OpeningAmount,
		TotalSupplies:     supplies,
		TotalWithdraws:    withdraws,
		CashSales:         cashSales,
		DailySales:        session.DailySales,
		SaleCount:         saleCount,
		ClosedAt:          closedAt.Format(time.RFC3339),
	}
}

func sessionToReport(s *model.CashSession, movementCount int) *dto.SessionReportResponse {
	resp := &dto.SessionReportResponse{
		SessionID:     s.ID.String(),
		Register:      s.Register,
		Status:        string(s.Status),
		OpeningAmount: s.OpeningAmount,
		Balance:       s.Balance,
		DailySales:    s.DailySales,
		MovementCount: movementCount,
		OpenedAt:      s.OpenedAt.Format(time.RFC3339),
	}
	if s.ClosedAt != nil {
		t := s.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &t
	}
	return resp
}

func movementToResponse(m model.Movement) dto.MovementResponse {
	resp := dto.MovementResponse{
		ID:          m.ID.String(),
		Seq:         m.Seq,
		Type:        string(m.Type),
		TypeLabel:   m.Type.Label(),
		Amount:      m.Amount,
		Description: m.Description,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
	if m.PaymentMethod != nil {
		method := string(*m.PaymentMethod)
		resp.PaymentMethod = &method
	}
	if m.ReferenceID != nil {
		ref := m.ReferenceID.String()
		resp.ReferenceID = &ref
	}
	return resp
}

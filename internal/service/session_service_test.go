package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tillpos/internal/dto"
	"tillpos/internal/model"
	"tillpos/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── In-memory SessionRepository ──────────────────────────────────────────────

type memSessionRepo struct {
	sessions  map[uuid.UUID]*model.CashSession
	movements []model.Movement
}

var _ repository.SessionRepository = (*memSessionRepo)(nil)

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[uuid.UUID]*model.CashSession)}
}

// Transaction emulates rollback: on error every write made inside fn is
// discarded, like the real repository's DB transaction.
func (r *memSessionRepo) Transaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	snapshot := make(map[uuid.UUID]*model.CashSession, len(r.sessions))
	for id, s := range r.sessions {
		copied := *s
		snapshot[id] = &copied
	}
	movements := append([]model.Movement(nil), r.movements...)

	if err := fn(nil); err != nil {
		r.sessions = snapshot
		r.movements = movements
		return err
	}
	return nil
}

func (r *memSessionRepo) CreateSessionTx(_ *gorm.DB, s *model.CashSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessionRepo) FindOpenByRegister(_ context.Context, register int) (*model.CashSession, error) {
	for _, s := range r.sessions {
		if s.Register == register && s.Status == model.SessionOpen {
			return s, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *memSessionRepo) FindOpenByOperator(_ context.Context, operatorID uuid.UUID) (*model.CashSession, error) {
	for _, s := range r.sessions {
		if s.OperatorID == operatorID && s.Status == model.SessionOpen {
			return s, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *memSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*model.CashSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (r *memSessionRepo) SaveSessionTx(_ *gorm.DB, s *model.CashSession) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessionRepo) AppendMovementTx(_ *gorm.DB, m *model.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	r.movements = append(r.movements, *m)
	return nil
}

func (r *memSessionRepo) ListMovements(_ context.Context, sessionID uuid.UUID) ([]model.Movement, error) {
	var result []model.Movement
	for _, m := range r.movements {
		if m.SessionID == sessionID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *memSessionRepo) ListClosed(_ context.Context, page, limit int) ([]model.CashSession, int64, error) {
	var result []model.CashSession
	for _, s := range r.sessions {
		if s.Status == model.SessionClosed {
			result = append(result, *s)
		}
	}
	return result, int64(len(result)), nil
}

// ── In-memory SaleRepository ─────────────────────────────────────────────────

type memSaleRepo struct {
	sales      map[uuid.UUID]*model.Sale
	nextTicket int
}

var _ repository.SaleRepository = (*memSaleRepo)(nil)

func newMemSaleRepo() *memSaleRepo {
	return &memSaleRepo{sales: make(map[uuid.UUID]*model.Sale)}
}

func (r *memSaleRepo) CreateTx(_ *gorm.DB, s *model.Sale) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	r.sales[s.ID] = s
	return nil
}

func (r *memSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	s, ok := r.sales[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (r *memSaleRepo) NextTicketNumberTx(_ *gorm.DB) (int, error) {
	r.nextTicket++
	return r.nextTicket, nil
}

func (r *memSaleRepo) List(_ context.Context, _ dto.SaleFilter) ([]model.Sale, int64, error) {
	var result []model.Sale
	for _, s := range r.sales {
		result = append(result, *s)
	}
	return result, int64(len(result)), nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func newTestSessionService(allowNegative bool) (SessionService, *memSessionRepo, *memSaleRepo) {
	repo := newMemSessionRepo()
	sales := newMemSaleRepo()
	return NewSessionService(repo, sales, nil, allowNegative), repo, sales
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openSession(t *testing.T, svc SessionService, operatorID uuid.UUID, amount string) *dto.SessionReportResponse {
	t.Helper()
	resp, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		Register:      1,
		InitialAmount: dec(amount),
	})
	require.NoError(t, err)
	return resp
}

func testSale(total string, method model.PaymentMethod) *model.Sale {
	amount := dec(total)
	return &model.Sale{
		Subtotal:      amount,
		Discount:      decimal.Zero,
		Total:         amount,
		PaymentMethod: method,
		Status:        "completed",
	}
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func TestOpenSession(t *testing.T) {
	svc, repo, _ := newTestSessionService(true)
	operatorID := uuid.New()

	resp := openSession(t, svc, operatorID, "100.00")

	assert.Equal(t, "open", resp.Status)
	assert.True(t, resp.Balance.Equal(dec("100.00")))
	assert.True(t, resp.DailySales.IsZero())

	// Opening movement is on the ledger
	require.Len(t, repo.movements, 1)
	assert.Equal(t, model.MovementOpening, repo.movements[0].Type)
	assert.True(t, repo.movements[0].Amount.Equal(dec("100.00")))
	assert.Equal(t, 1, repo.movements[0].Seq)
}

func TestOpenSession_DuplicateRegister(t *testing.T) {
	svc, _, _ := newTestSessionService(true)

	openSession(t, svc, uuid.New(), "100.00")

	_, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		Register:      1,
		InitialAmount: dec("50.00"),
	})
	assert.ErrorIs(t, err, ErrSessionAlreadyOpen)
}

func TestOpenSession_NegativeAmount(t *testing.T) {
	svc, repo, _ := newTestSessionService(true)

	_, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		Register:      1,
		InitialAmount: dec("-10.00"),
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, repo.movements)
}

// failingAppendRepo fails the next n movement appends, simulating the insert
// dying mid-transaction.
type failingAppendRepo struct {
	*memSessionRepo
	failures int
}

func (r *failingAppendRepo) AppendMovementTx(tx *gorm.DB, m *model.Movement) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("insert movements: connection reset by peer")
	}
	return r.memSessionRepo.AppendMovementTx(tx, m)
}

func TestOpenSession_FailedLedgerAppendRollsBack(t *testing.T) {
	repo := &failingAppendRepo{memSessionRepo: newMemSessionRepo(), failures: 1}
	svc := NewSessionService(repo, newMemSaleRepo(), nil, true)
	operatorID := uuid.New()

	_, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		Register:      1,
		InitialAmount: dec("100.00"),
	})
	require.Error(t, err)

	// The session row rolled back with the failed append: no open session
	// without its opening movement, and no stray ledger entries.
	open, findErr := repo.FindOpenByRegister(context.Background(), 1)
	assert.Error(t, findErr)
	assert.Nil(t, open)
	assert.Empty(t, repo.movements)

	// The register is not stuck: the next open succeeds
	resp, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		Register:      1,
		InitialAmount: dec("100.00"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(dec("100.00")))
	require.Len(t, repo.movements, 1)
	assert.Equal(t, model.MovementOpening, repo.movements[0].Type)
	assert.Equal(t, 1, repo.movements[0].Seq)
}

func TestCloseSession(t *testing.T) {
	svc, repo, _ := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "100.00")

	_, err := svc.Supply(context.Background(), operatorID, dto.SupplyRequest{Amount: dec("50.00")})
	require.NoError(t, err)
	_, _, err = svc.RecordSale(context.Background(), operatorID, testSale("80.00", model.PaymentCash))
	require.NoError(t, err)
	_, _, err = svc.RecordSale(context.Background(), operatorID, testSale("20.00", model.PaymentPix))
	require.NoError(t, err)
	_, err = svc.Withdraw(context.Background(), operatorID, dto.WithdrawRequest{Amount: dec("30.00"), Reason: "bank deposit"})
	require.NoError(t, err)

	report, err := svc.Close(context.Background(), operatorID)
	require.NoError(t, err)

	// 100 + 50 supply + 80 cash sale - 30 withdraw; pix does not touch the drawer
	assert.True(t, report.FinalBalance.Equal(dec("200.00")), "final balance: %s", report.FinalBalance)
	assert.True(t, report.TotalSupplies.Equal(dec("50.00")))
	assert.True(t, report.TotalWithdraws.Equal(dec("30.00")))
	assert.True(t, report.CashSales.Equal(dec("80.00")))
	assert.True(t, report.DailySales.Equal(dec("100.00")))
	assert.Equal(t, 2, report.SaleCount)

	// Closing movement snapshots the final balance
	last := repo.movements[len(repo.movements)-1]
	assert.Equal(t, model.MovementClosing, last.Type)
	assert.True(t, last.Amount.Equal(dec("200.00")))

	// Double close
	_, err = svc.Close(context.Background(), operatorID)
	assert.ErrorIs(t, err, ErrSessionAlreadyClosed)
}

func TestClosedSession_RejectsMutations(t *testing.T) {
	svc, repo, sales := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "100.00")
	_, err := svc.Close(context.Background(), operatorID)
	require.NoError(t, err)

	ledgerLen := len(repo.movements)

	_, err = svc.Supply(context.Background(), operatorID, dto.SupplyRequest{Amount: dec("10.00")})
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = svc.Withdraw(context.Background(), operatorID, dto.WithdrawRequest{Amount: dec("10.00"), Reason: "change run"})
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, _, err = svc.RecordSale(context.Background(), operatorID, testSale("10.00", model.PaymentCash))
	assert.ErrorIs(t, err, ErrSessionClosed)

	// Nothing was appended or persisted
	assert.Len(t, repo.movements, ledgerLen)
	assert.Empty(t, sales.sales)
}

// ── Supply / Withdraw ────────────────────────────────────────────────────────

func TestSupplyAndWithdraw(t *testing.T) {
	svc, repo, _ := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "100.00")

	resp, err := svc.Supply(context.Background(), operatorID, dto.SupplyRequest{Amount: dec("50.00"), Description: "change from safe"})
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(dec("150.00")))

	resp, err = svc.Withdraw(context.Background(), operatorID, dto.WithdrawRequest{Amount: dec("30.00"), Reason: "bank deposit"})
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(dec("120.00")))

	require.Len(t, repo.movements, 3)
	assert.Equal(t, model.MovementSupply, repo.movements[1].Type)
	assert.Equal(t, model.MovementWithdraw, repo.movements[2].Type)
	assert.Equal(t, "Sangria: bank deposit", repo.movements[2].Description)
}

func TestSupply_InvalidAmount(t *testing.T) {
	svc, repo, _ := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "100.00")

	for _, amount := range []string{"0", "-5.00"} {
		_, err := svc.Supply(context.Background(), operatorID, dto.SupplyRequest{Amount: dec(amount)})
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = svc.Withdraw(context.Background(), operatorID, dto.WithdrawRequest{Amount: dec(amount), Reason: "oops"})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.Len(t, repo.movements, 1) // only the opening
}

func TestWithdraw_WithoutOpenSession(t *testing.T) {
	svc, _, _ := newTestSessionService(true)

	_, err := svc.Withdraw(context.Background(), uuid.New(), dto.WithdrawRequest{Amount: dec("10.00"), Reason: "bank deposit"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestWithdraw_OverdraftAllowedByDefault(t *testing.T) {
	svc, _, _ := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "10.00")

	resp, err := svc.Withdraw(context.Background(), operatorID, dto.WithdrawRequest{Amount: dec("40.00"), Reason: "bank deposit"})
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(dec("-30.00")))
}

func TestWithdraw_OverdraftBlockedWhenDisabled(t *testing.T) {
	svc, repo, _ := newTestSessionService(false)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "10.00")

	_, err := svc.Withdraw(context.Background(), operatorID, dto.WithdrawRequest{Amount: dec("40.00"), Reason: "bank deposit"})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	active, err := svc.Active(context.Background(), operatorID)
	require.NoError(t, err)
	assert.True(t, active.Balance.Equal(dec("10.00")))
	assert.Len(t, repo.movements, 1)
}

// ── Locks ────────────────────────────────────────────────────────────────────

func lockCount(l *sessionLocks) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func TestSessionLocks_LastReleaseDropsEntry(t *testing.T) {
	locks := newSessionLocks()

	release := locks.acquire("register:1")
	assert.Equal(t, 1, lockCount(locks))

	release()
	assert.Equal(t, 0, lockCount(locks))
}

func TestSessionLocks_EntrySurvivesWaiters(t *testing.T) {
	locks := newSessionLocks()
	first := locks.acquire("session-key")

	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(acquired)
		release := locks.acquire("session-key")
		release()
		close(done)
	}()

	<-acquired
	time.Sleep(10 * time.Millisecond) // let the goroutine block on the held lock
	assert.Equal(t, 1, lockCount(locks))

	first()
	<-done
	assert.Equal(t, 0, lockCount(locks))
}

// ── Sales ────────────────────────────────────────────────────────────────────

func TestRecordSale_Cash(t *testing.T) {
	svc, repo, sales := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "100.00")

	sale := testSale("80.00", model.PaymentCash)
	mov, session, err := svc.RecordSale(context.Background(), operatorID, sale)
	require.NoError(t, err)

	assert.True(t, session.Balance.Equal(dec("180.00")))
	assert.True(t, session.DailySales.Equal(dec("80.00")))
	assert.Equal(t, 1, sale.TicketNumber)
	assert.Len(t, sales.sales, 1)

	require.Len(t, repo.movements, 2)
	assert.Equal(t, model.MovementSale, mov.Type)
	require.NotNil(t, mov.PaymentMethod)
	assert.Equal(t, model.PaymentCash, *mov.PaymentMethod)
	require.NotNil(t, mov.ReferenceID)
	assert.Equal(t, sale.ID, *mov.ReferenceID)
}

func TestRecordSale_NonCashLeavesBalance(t *testing.T) {
	svc, _, _ := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "100.00")

	for i, method := range []model.PaymentMethod{model.PaymentCredit, model.PaymentDebit, model.PaymentPix} {
		_, session, err := svc.RecordSale(context.Background(), operatorID, testSale("10.00", method))
		require.NoError(t, err)
		assert.True(t, session.Balance.Equal(dec("100.00")))
		assert.True(t, session.DailySales.Equal(decimal.NewFromInt(int64(10*(i+1)))))
	}
}

func TestRecordSale_InvalidPaymentMethod(t *testing.T) {
	svc, _, _ := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "100.00")

	_, _, err := svc.RecordSale(context.Background(), operatorID, testSale("10.00", model.PaymentMethod("check")))
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
}

func TestRecordSale_SequentialTickets(t *testing.T) {
	svc, _, _ := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "0")

	for want := 1; want <= 3; want++ {
		sale := testSale("5.00", model.PaymentCash)
		_, _, err := svc.RecordSale(context.Background(), operatorID, sale)
		require.NoError(t, err)
		assert.Equal(t, want, sale.TicketNumber)
	}
}

// ── Ledger ───────────────────────────────────────────────────────────────────

func TestLedger_OrderAndSequence(t *testing.T) {
	svc, _, _ := newTestSessionService(true)
	operatorID := uuid.New()
	open := openSession(t, svc, operatorID, "100.00")

	_, err := svc.Supply(context.Background(), operatorID, dto.SupplyRequest{Amount: dec("50.00")})
	require.NoError(t, err)
	_, _, err = svc.RecordSale(context.Background(), operatorID, testSale("80.00", model.PaymentCash))
	require.NoError(t, err)
	_, err = svc.Withdraw(context.Background(), operatorID, dto.WithdrawRequest{Amount: dec("30.00"), Reason: "bank deposit"})
	require.NoError(t, err)

	sessionID, err := uuid.Parse(open.SessionID)
	require.NoError(t, err)
	ledger, err := svc.Ledger(context.Background(), sessionID)
	require.NoError(t, err)

	require.Len(t, ledger, 4)
	for i, m := range ledger {
		assert.Equal(t, i+1, m.Seq)
	}
	assert.Equal(t, "opening", ledger[0].Type)
	assert.Equal(t, "supply", ledger[1].Type)
	assert.Equal(t, "sale", ledger[2].Type)
	assert.Equal(t, "withdraw", ledger[3].Type)
}

func TestLedger_UnknownSession(t *testing.T) {
	svc, _, _ := newTestSessionService(true)
	_, err := svc.Ledger(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBalanceReconciliation(t *testing.T) {
	svc, _, _ := newTestSessionService(true)
	operatorID := uuid.New()
	openSession(t, svc, operatorID, "200.00")

	_, err := svc.Supply(context.Background(), operatorID, dto.SupplyRequest{Amount: dec("25.50")})
	require.NoError(t, err)
	_, _, err = svc.RecordSale(context.Background(), operatorID, testSale("99.99", model.PaymentCash))
	require.NoError(t, err)
	_, _, err = svc.RecordSale(context.Background(), operatorID, testSale("45.00", model.PaymentDebit))
	require.NoError(t, err)
	_, err = svc.Withdraw(context.Background(), operatorID, dto.WithdrawRequest{Amount: dec("120.00"), Reason: "bank deposit"})
	require.NoError(t, err)

	active, err := svc.Active(context.Background(), operatorID)
	require.NoError(t, err)

	// opening + supplies - withdraws + cash sales
	want := dec("200.00").Add(dec("25.50")).Sub(dec("120.00")).Add(dec("99.99"))
	assert.True(t, active.Balance.Equal(want), "balance %s want %s", active.Balance, want)
	assert.True(t, active.DailySales.Equal(dec("144.99")))
}

package repository

import (
	"context"

	"tillpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRepository persists cash sessions and their movement ledger.
// The ledger is append-only: there is deliberately no update or delete for
// movements, so immutability is a compile-time property of this interface.
type SessionRepository interface {
	FindOpenByRegister(ctx context.Context, register int) (*model.CashSession, error)
	FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*model.CashSession, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error)
	// Transaction runs fn atomically; all writes inside it go through the
	// Tx-suffixed methods below. A session row is only ever created or saved
	// together with its ledger movement, so a half-applied mutation (session
	// without opening movement, balance without ledger entry) never commits.
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	CreateSessionTx(tx *gorm.DB, s *model.CashSession) error
	SaveSessionTx(tx *gorm.DB, s *model.CashSession) error
	AppendMovementTx(tx *gorm.DB, m *model.Movement) error
	ListMovements(ctx context.Context, sessionID uuid.UUID) ([]model.Movement, error)
	ListClosed(ctx context.Context, page, limit int) ([]model.CashSession, int64, error)
}

type sessionRepo struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &sessionRepo{db: db} }

func (r *sessionRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *sessionRepo) CreateSessionTx(tx *gorm.DB, s *model.CashSession) error {
	return tx.Create(s).Error
}

func (r *sessionRepo) FindOpenByRegister(ctx context.Context, register int) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Where("register = ? AND status = ?", register, model.SessionOpen).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Where("operator_id = ? AND status = ?", operatorID, model.SessionOpen).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) SaveSessionTx(tx *gorm.DB, s *model.CashSession) error {
	return tx.Save(s).Error
}

func (r *sessionRepo) AppendMovementTx(tx *gorm.DB, m *model.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return tx.Create(m).Error
}

func (r *sessionRepo) ListMovements(ctx context.Context, sessionID uuid.UUID) ([]model.Movement, error) {
	var movs []model.Movement
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, seq ASC").
		Find(&movs).Error
	return movs, err
}

func (r *sessionRepo) ListClosed(ctx context.Context, page, limit int) ([]model.CashSession, int64, error) {
	var sessions []model.CashSession
	var total int64
	offset := (page - 1) * limit

	q := r.db.WithContext(ctx).Model(&model.CashSession{}).Where("status = ?", model.SessionClosed)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("closed_at DESC").Offset(offset).Limit(limit).Find(&sessions).Error
	return sessions, total, err
}

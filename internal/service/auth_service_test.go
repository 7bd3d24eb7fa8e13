package service

import (
	"context"
	"errors"
	"testing"

	"tillpos/internal/config"
	"tillpos/internal/dto"
	"tillpos/internal/model"
	"tillpos/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ── In-memory OperatorRepository ─────────────────────────────────────────────

type memOperatorRepo struct {
	operators map[uuid.UUID]*model.Operator
}

var _ repository.OperatorRepository = (*memOperatorRepo)(nil)

func newMemOperatorRepo() *memOperatorRepo {
	return &memOperatorRepo{operators: make(map[uuid.UUID]*model.Operator)}
}

func (r *memOperatorRepo) Create(_ context.Context, o *model.Operator) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	r.operators[o.ID] = o
	return nil
}

func (r *memOperatorRepo) FindByUsername(_ context.Context, username string) (*model.Operator, error) {
	for _, o := range r.operators {
		if o.Username == username && o.Active {
			return o, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *memOperatorRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Operator, error) {
	o, ok := r.operators[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return o, nil
}

func (r *memOperatorRepo) List(_ context.Context, includeInactive bool) ([]model.Operator, error) {
	var result []model.Operator
	for _, o := range r.operators {
		if includeInactive || o.Active {
			result = append(result, *o)
		}
	}
	return result, nil
}

func (r *memOperatorRepo) Update(_ context.Context, o *model.Operator) error {
	r.operators[o.ID] = o
	return nil
}

func (r *memOperatorRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	if o, ok := r.operators[id]; ok {
		o.Active = false
	}
	return nil
}

func (r *memOperatorRepo) Reactivate(_ context.Context, id uuid.UUID) error {
	if o, ok := r.operators[id]; ok {
		o.Active = true
	}
	return nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func newTestAuthService() (AuthService, *memOperatorRepo) {
	repo := newMemOperatorRepo()
	cfg := &config.Config{
		JWTSecret:          "test-secret",
		JWTExpirationHours: 1,
		JWTRefreshHours:    24,
	}
	return NewAuthService(repo, cfg), repo
}

func seedOperator(t *testing.T, repo *memOperatorRepo, username, password, role string) *model.Operator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	op := &model.Operator{
		Username:     username,
		Name:         "Test Operator",
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}
	require.NoError(t, repo.Create(context.Background(), op))
	return op
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	svc, repo := newTestAuthService()
	seedOperator(t, repo, "maria", "shift-pass-1", "cashier")

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Username: "maria", Password: "shift-pass-1"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "maria", resp.User.Username)
	assert.Equal(t, "cashier", resp.User.Role)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, repo := newTestAuthService()
	seedOperator(t, repo, "maria", "shift-pass-1", "cashier")

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "maria", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownOrInactiveUser(t *testing.T) {
	svc, repo := newTestAuthService()
	op := seedOperator(t, repo, "maria", "shift-pass-1", "cashier")

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "nobody", Password: "shift-pass-1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, repo.SoftDelete(context.Background(), op.ID))
	_, err = svc.Login(context.Background(), dto.LoginRequest{Username: "maria", Password: "shift-pass-1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh_IssuesNewTokens(t *testing.T) {
	svc, repo := newTestAuthService()
	seedOperator(t, repo, "maria", "shift-pass-1", "cashier")

	login, err := svc.Login(context.Background(), dto.LoginRequest{Username: "maria", Password: "shift-pass-1"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, "maria", refreshed.User.Username)
}

func TestRefresh_RejectsGarbageToken(t *testing.T) {
	svc, _ := newTestAuthService()

	_, err := svc.Refresh(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestCreateOperator_HashesPassword(t *testing.T) {
	svc, repo := newTestAuthService()

	resp, err := svc.CreateOperator(context.Background(), dto.CreateOperatorRequest{
		Username: "carlos",
		Name:     "Carlos",
		Password: "super-secret-pw",
		Role:     "supervisor",
	})
	require.NoError(t, err)
	assert.True(t, resp.Active)

	stored, err := repo.FindByUsername(context.Background(), "carlos")
	require.NoError(t, err)
	assert.NotEqual(t, "super-secret-pw", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("super-secret-pw")))
}

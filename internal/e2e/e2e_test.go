//go:build integration

package e2e

// End-to-end integration tests using real Postgres + Redis via testcontainers.
// Run with: go test -tags integration ./internal/e2e/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tillpos/internal/config"
	"tillpos/internal/infra"
	"tillpos/internal/model"
	"tillpos/internal/router"
	"tillpos/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body *bytes.Buffer, token string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, srv.URL+path, body)
	} else {
		req, err = http.NewRequest(method, srv.URL+path, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

// ── Test Suite Setup ─────────────────────────────────────────────────────────

type testEnv struct {
	server *httptest.Server
	token  string // admin JWT
	db     *gorm.DB
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("tillpos_test"),
		tcPostgres.WithUsername("tillpos"),
		tcPostgres.WithPassword("tillpos"),
		testcontainers.WithWaitStrategy(
			tcPostgres.BasicWaitStrategies()...,
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:                 8000,
		Env:                  "test",
		JWTSecret:            "test-secret-key",
		JWTExpirationHours:   8,
		JWTRefreshHours:      24,
		DatabaseURL:          pgURL,
		RedisURL:             rdURL,
		WorkerPoolSize:       1,
		AllowNegativeBalance: true,
		CartTTLMinutes:       60,
		BusinessName:         "TillPOS Test",
		PDFStoragePath:       t.TempDir(),
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)

	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	// Seed admin operator
	hash, err := bcrypt.GenerateFromPassword([]byte("e2e-password"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.Create(&model.Operator{
		Username:     "admin",
		Name:         "Admin E2E",
		PasswordHash: string(hash),
		Role:         "admin",
		Active:       true,
	}).Error)

	breaker := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	mailer := infra.NewMailer(cfg, breaker)
	dispatcher := worker.NewDispatcher(rdb)

	r := router.New(cfg, db, rdb, mailer, dispatcher)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	loginResp := do(t, srv, "POST", "/v1/auth/login",
		jsonBody(t, map[string]string{"username": "admin", "password": "e2e-password"}),
		"",
	)
	require.Equal(t, http.StatusOK, loginResp.StatusCode)
	var loginBody struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, loginResp, &loginBody)
	require.NotEmpty(t, loginBody.AccessToken)

	return &testEnv{server: srv, token: loginBody.AccessToken, db: db}
}

// ── Tests ────────────────────────────────────────────────────────────────────

// Full drawer cycle: open → supply → cart → checkout → ledger → close.
func TestE2E_FullDrawerCycle(t *testing.T) {
	env := setupTestEnv(t)

	// 1. Open session
	openResp := do(t, env.server, "POST", "/v1/session/open",
		jsonBody(t, map[string]any{"register": 1, "initial_amount": "100.00"}),
		env.token,
	)
	require.Equal(t, http.StatusCreated, openResp.StatusCode)
	var session struct {
		SessionID string `json:"session_id"`
		Balance   string `json:"balance"`
	}
	decodeJSON(t, openResp, &session)
	assert.Equal(t, "100", session.Balance)

	// Duplicate open on the same register conflicts
	dupResp := do(t, env.server, "POST", "/v1/session/open",
		jsonBody(t, map[string]any{"register": 1, "initial_amount": "50.00"}),
		env.token,
	)
	dupResp.Body.Close()
	require.Equal(t, http.StatusConflict, dupResp.StatusCode)

	// 2. Supply
	supplyResp := do(t, env.server, "POST", "/v1/session/supply",
		jsonBody(t, map[string]any{"amount": "50.00", "description": "change from safe"}),
		env.token,
	)
	supplyResp.Body.Close()
	require.Equal(t, http.StatusOK, supplyResp.StatusCode)

	// 3. Build cart and checkout
	addResp := do(t, env.server, "POST", "/v1/cart/items",
		jsonBody(t, map[string]any{
			"product_id": "4f4a39a8-6c3b-4b5e-9d1a-2f8f0b6f8e01",
			"name":       "Soda 500ml",
			"unit_price": "40.00",
		}),
		env.token,
	)
	addResp.Body.Close()
	require.Equal(t, http.StatusOK, addResp.StatusCode)

	qtyResp := do(t, env.server, "PATCH", "/v1/cart/items/4f4a39a8-6c3b-4b5e-9d1a-2f8f0b6f8e01",
		jsonBody(t, map[string]any{"quantity": 2}),
		env.token,
	)
	qtyResp.Body.Close()
	require.Equal(t, http.StatusOK, qtyResp.StatusCode)

	discResp := do(t, env.server, "POST", "/v1/cart/discount",
		jsonBody(t, map[string]any{"amount": "10.00"}),
		env.token,
	)
	discResp.Body.Close()
	require.Equal(t, http.StatusOK, discResp.StatusCode)

	checkoutResp := do(t, env.server, "POST", "/v1/checkout",
		jsonBody(t, map[string]any{"payment_method": "cash"}),
		env.token,
	)
	require.Equal(t, http.StatusCreated, checkoutResp.StatusCode)
	var checkout struct {
		TicketNumber int    `json:"ticket_number"`
		Total        string `json:"total"`
		Balance      string `json:"balance"`
	}
	decodeJSON(t, checkoutResp, &checkout)
	assert.Equal(t, 1, checkout.TicketNumber)
	assert.Equal(t, "70", checkout.Total)
	assert.Equal(t, "220", checkout.Balance) // 100 + 50 + 70

	// Cart is empty after checkout
	cartResp := do(t, env.server, "GET", "/v1/cart", nil, env.token)
	require.Equal(t, http.StatusOK, cartResp.StatusCode)
	var cart struct {
		Items []any `json:"items"`
	}
	decodeJSON(t, cartResp, &cart)
	assert.Empty(t, cart.Items)

	// 4. Ledger shows opening, supply and sale in order
	ledgerResp := do(t, env.server, "GET", "/v1/session/"+session.SessionID+"/ledger", nil, env.token)
	require.Equal(t, http.StatusOK, ledgerResp.StatusCode)
	var ledger struct {
		Data []struct {
			Seq  int    `json:"seq"`
			Type string `json:"type"`
		} `json:"data"`
	}
	decodeJSON(t, ledgerResp, &ledger)
	require.Len(t, ledger.Data, 3)
	assert.Equal(t, "opening", ledger.Data[0].Type)
	assert.Equal(t, "supply", ledger.Data[1].Type)
	assert.Equal(t, "sale", ledger.Data[2].Type)

	// 5. Close session and check the Z-report
	closeResp := do(t, env.server, "POST", "/v1/session/close", nil, env.token)
	require.Equal(t, http.StatusOK, closeResp.StatusCode)
	var report struct {
		FinalBalance string `json:"final_balance"`
		CashSales    string `json:"cash_sales"`
		SaleCount    int    `json:"sale_count"`
	}
	decodeJSON(t, closeResp, &report)
	assert.Equal(t, "220", report.FinalBalance)
	assert.Equal(t, "70", report.CashSales)
	assert.Equal(t, 1, report.SaleCount)
}

// Checkout against a closed session keeps the cart for a retry.
func TestE2E_CheckoutWithoutSessionKeepsCart(t *testing.T) {
	env := setupTestEnv(t)

	addResp := do(t, env.server, "POST", "/v1/cart/items",
		jsonBody(t, map[string]any{
			"product_id": "4f4a39a8-6c3b-4b5e-9d1a-2f8f0b6f8e02",
			"name":       "Water",
			"unit_price": "15.00",
		}),
		env.token,
	)
	addResp.Body.Close()
	require.Equal(t, http.StatusOK, addResp.StatusCode)

	checkoutResp := do(t, env.server, "POST", "/v1/checkout",
		jsonBody(t, map[string]any{"payment_method": "cash"}),
		env.token,
	)
	checkoutResp.Body.Close()
	require.Equal(t, http.StatusConflict, checkoutResp.StatusCode)

	cartResp := do(t, env.server, "GET", "/v1/cart", nil, env.token)
	require.Equal(t, http.StatusOK, cartResp.StatusCode)
	var cart struct {
		Items []any  `json:"items"`
		Total string `json:"total"`
	}
	decodeJSON(t, cartResp, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "15", cart.Total)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/middleware"
	"exchange/internal/models"
	"exchange/internal/notify"
	"exchange/internal/rates"
	"exchange/internal/service"
	"exchange/internal/store"
)

type stubRates struct{}

func (stubRates) Rates(ctx context.Context, currency string) (rates.Rates, error) {
	if currency != "usd" {
		return nil, rates.ErrUnsupportedCurrency
	}
	return rates.Rates{
		models.AssetBTC:  decimal.NewFromInt(50000),
		models.AssetUSDT: decimal.NewFromInt(1),
		models.AssetETH:  decimal.NewFromInt(2500),
	}, nil
}

type testEnv struct {
	server     *Server
	store      *store.Memory
	svc        *service.Service
	adminToken string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	tokens := middleware.NewTokenIssuer("test-secret", time.Hour)
	svc := service.New(mem, notify.LogNotifier{}, stubRates{}, tokens, decimal.NewFromInt(10))

	_, err := svc.CreateAdmin(context.Background(), models.CreateUserRequest{
		Name: "Admin", Email: "admin@exchange.test", Password: "administrator",
	})
	require.NoError(t, err)

	env := &testEnv{
		server: NewServer(svc, mem, tokens, middleware.NewRateLimiter(1000, 1000)),
		store:  mem,
		svc:    svc,
	}
	env.adminToken = env.login(t, "admin@exchange.test", "administrator")
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}

	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.LoginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Token
}

// createTestUser registers a user and returns its id and session token.
func (e *testEnv) createTestUser(t *testing.T, email string) (int64, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/register", "", models.CreateUserRequest{
		Name: "Test User", Email: email, Password: "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		User models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.User.ID, e.login(t, email, "password123")
}

func (e *testEnv) addTestCredit(t *testing.T, userID int64, asset string, amount string) {
	t.Helper()
	w := e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/credit", userID), e.adminToken,
		map[string]string{"asset": asset, "amount": amount})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["error"]
}

func TestCreateUser(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name           string
		payload        models.CreateUserRequest
		expectedStatus int
	}{
		{
			name:           "Valid User",
			payload:        models.CreateUserRequest{Name: "John Doe", Email: "john@exchange.test", Password: "password123"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Empty Name",
			payload:        models.CreateUserRequest{Name: "", Email: "jane@exchange.test", Password: "password123"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Short Password",
			payload:        models.CreateUserRequest{Name: "Jane", Email: "jane@exchange.test", Password: "short"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Duplicate Email",
			payload:        models.CreateUserRequest{Name: "Admin", Email: "admin@exchange.test", Password: "password123"},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/auth/register", "", tt.payload)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Email: "admin@exchange.test", Password: "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, errorMessage(t, w), "invalid credentials")
}

func TestCreateTransaction(t *testing.T) {
	env := setupTestServer(t)
	userID, token := env.createTestUser(t, "alice@exchange.test")
	env.addTestCredit(t, userID, "btc", "1.5")

	tests := []struct {
		name           string
		token          string
		payload        map[string]interface{}
		expectedStatus int
	}{
		{
			name:           "Unauthenticated",
			payload:        map[string]interface{}{"amount": "0.5", "walletAddress": "bc1q", "asset": "btc"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Valid Transaction",
			token:          token,
			payload:        map[string]interface{}{"amount": "0.5", "walletAddress": "bc1q", "asset": "btc"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Insufficient Balance",
			token:          token,
			payload:        map[string]interface{}{"amount": 5, "walletAddress": "bc1q", "asset": "btc"},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "Unknown Asset",
			token:          token,
			payload:        map[string]interface{}{"amount": 1, "walletAddress": "bc1q", "asset": "doge"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/transactions", tt.token, tt.payload)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/balance", userID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var balances models.Balances
	require.NoError(t, json.NewDecoder(w.Body).Decode(&balances))
	assert.True(t, balances.BTC.Equal(decimal.NewFromInt(1)))

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/transactions", userID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var txns []models.Transaction
	require.NoError(t, json.NewDecoder(w.Body).Decode(&txns))
	require.Len(t, txns, 1)
	assert.Equal(t, models.StatusPending, txns[0].Status)
	assert.True(t, txns[0].BTC)
}

func TestCreateTransactionResponseShape(t *testing.T) {
	env := setupTestServer(t)
	userID, token := env.createTestUser(t, "alice@exchange.test")
	env.addTestCredit(t, userID, "usdt", "100")

	w := env.do(t, http.MethodPost, "/api/transactions", token,
		map[string]interface{}{"amount": "25", "walletAddress": "TXwallet", "asset": "usdt"})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Message     string             `json:"message"`
		Transaction models.Transaction `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Transaction created successfully", resp.Message)
	assert.Equal(t, models.AssetUSDT, resp.Transaction.Asset)
	assert.NotEmpty(t, resp.Transaction.TransactionID)
}

func TestGetUserBalanceAccess(t *testing.T) {
	env := setupTestServer(t)
	aliceID, aliceToken := env.createTestUser(t, "alice@exchange.test")
	_, bobToken := env.createTestUser(t, "bob@exchange.test")

	tests := []struct {
		name           string
		path           string
		token          string
		expectedStatus int
	}{
		{"Owner", fmt.Sprintf("/api/users/%d/balance", aliceID), aliceToken, http.StatusOK},
		{"Other User", fmt.Sprintf("/api/users/%d/balance", aliceID), bobToken, http.StatusForbidden},
		{"Admin", fmt.Sprintf("/api/users/%d/balance", aliceID), env.adminToken, http.StatusOK},
		{"Admin Unknown User", "/api/users/999/balance", env.adminToken, http.StatusNotFound},
		{"Anonymous", fmt.Sprintf("/api/users/%d/balance", aliceID), "", http.StatusUnauthorized},
		{"Invalid Token", fmt.Sprintf("/api/users/%d/balance", aliceID), "garbage", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestReferralFlow(t *testing.T) {
	env := setupTestServer(t)
	_, aliceToken := env.createTestUser(t, "alice@exchange.test")
	_, bobToken := env.createTestUser(t, "bob@exchange.test")

	w := env.do(t, http.MethodGet, "/api/referral/code", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var codeResp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&codeResp))
	code := codeResp["code"]
	require.Len(t, code, 8)

	w = env.do(t, http.MethodGet, "/api/referral/code", aliceToken, nil)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&codeResp))
	assert.Equal(t, code, codeResp["code"])

	w = env.do(t, http.MethodPost, "/api/referral/apply", bobToken, models.ApplyReferralRequest{Code: code})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/referral/apply", bobToken, models.ApplyReferralRequest{Code: code})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "referral code already used", errorMessage(t, w))

	w = env.do(t, http.MethodPost, "/api/referral/apply", aliceToken, models.ApplyReferralRequest{Code: "ZZZZ9999"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/referral/stats", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.ReferralStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.InvitedCount)
	assert.Equal(t, 1, env.store.CountReferrals())
}

func TestDashboard(t *testing.T) {
	env := setupTestServer(t)
	aliceID, aliceToken := env.createTestUser(t, "alice@exchange.test")

	w := env.do(t, http.MethodGet, "/api/dashboard", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var raw map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	assert.Equal(t, "0", raw["totalBalance"])
	assert.Equal(t, "0", raw["accountLimit"])

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/admin/users/%d/dashboard", aliceID), aliceToken,
		map[string]string{"totalBalance": "10"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/admin/users/%d/dashboard", aliceID), env.adminToken,
		map[string]string{"totalBalance": "1234.5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/dashboard", aliceToken, nil)
	var dash models.Dashboard
	require.NoError(t, json.NewDecoder(w.Body).Decode(&dash))
	assert.True(t, dash.TotalBalance.Equal(decimal.RequireFromString("1234.5")))
	assert.True(t, dash.AccountLimit.IsZero())
}

func TestUpdateTransactionStatus(t *testing.T) {
	env := setupTestServer(t)
	userID, token := env.createTestUser(t, "alice@exchange.test")
	env.addTestCredit(t, userID, "eth", "2")

	w := env.do(t, http.MethodPost, "/api/transactions", token,
		map[string]interface{}{"amount": "1", "walletAddress": "0xabc", "asset": "eth"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Transaction models.Transaction `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	path := fmt.Sprintf("/api/admin/transactions/%d/status", created.Transaction.ID)

	w = env.do(t, http.MethodPatch, path, token, models.UpdateStatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPatch, path, env.adminToken, models.UpdateStatusRequest{Status: "completed"})
	require.Equal(t, http.StatusOK, w.Code)

	long := strings.Repeat("x", 200)
	w = env.do(t, http.MethodPatch, path, env.adminToken, models.UpdateStatusRequest{Status: long})
	require.Equal(t, http.StatusOK, w.Code)
	var updated struct {
		Transaction models.Transaction `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, long, updated.Transaction.Status)

	w = env.do(t, http.MethodPatch, path, env.adminToken, models.UpdateStatusRequest{Status: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/api/admin/transactions/999/status", env.adminToken, models.UpdateStatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPatch, "/api/admin/transactions/abc/status", env.adminToken, models.UpdateStatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListUsers(t *testing.T) {
	env := setupTestServer(t)
	for i := 0; i < 24; i++ {
		env.createTestUser(t, fmt.Sprintf("user%02d@exchange.test", i))
	}

	w := env.do(t, http.MethodGet, "/api/admin/users?page=2&limit=10", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page models.UserPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Users, 10)
	assert.Equal(t, int64(15), page.Users[0].ID)

	w = env.do(t, http.MethodGet, "/api/admin/users?limit=500", env.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/users?page=abc", env.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/users?page=922337203685477582&limit=10", env.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentMethods(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.createTestUser(t, "alice@exchange.test")

	w := env.do(t, http.MethodPost, "/api/payment-methods", token, models.CreatePaymentMethodRequest{Name: "SEPA", Type: "bank"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/payment-methods", env.adminToken, models.CreatePaymentMethodRequest{Name: "SEPA", Type: "bank"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/payment-methods", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var methods []models.PaymentMethod
	require.NoError(t, json.NewDecoder(w.Body).Decode(&methods))
	require.Len(t, methods, 1)
	assert.Equal(t, "SEPA", methods[0].Name)
}

func TestBankAccounts(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.createTestUser(t, "alice@exchange.test")

	w := env.do(t, http.MethodPost, "/api/bank-accounts", token, models.CreateBankAccountRequest{
		BankName: "Bank", AccountNumber: "123", AccountName: "Alice",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/bank-accounts", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var accounts []models.BankAccount
	require.NoError(t, json.NewDecoder(w.Body).Decode(&accounts))
	assert.Len(t, accounts, 1)
}

func TestValuation(t *testing.T) {
	env := setupTestServer(t)
	userID, token := env.createTestUser(t, "alice@exchange.test")
	env.addTestCredit(t, userID, "eth", "2")

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/valuation?currency=usd", userID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var v models.Valuation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	assert.True(t, v.Total.Equal(decimal.NewFromInt(5000)))

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/valuation?currency=gbp", userID), token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "exchange_http_requests_total")
}

func TestInvalidBody(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", errorMessage(t, w))
}

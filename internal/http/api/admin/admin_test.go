package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/livemerce/pointsledger/internal/config"
	dbutil "github.com/livemerce/pointsledger/internal/db"
	"github.com/livemerce/pointsledger/internal/ledger"
	"github.com/livemerce/pointsledger/internal/models"
	"github.com/livemerce/pointsledger/internal/security"
	"github.com/livemerce/pointsledger/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testJWTSecret = "test-secret"

type apiFixture struct {
	db     *gorm.DB
	ledger *ledger.Service
	engine *gin.Engine
	token  string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := dbutil.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	hash, errHash := security.HashPassword("admin-password")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	admin := models.Admin{Username: "root", Password: hash, Active: true}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("seed admin: %v", errCreate)
	}

	authCfg := config.AuthConfig{JWTSecret: testJWTSecret}
	ledgerSvc := ledger.NewService(conn)
	provider := settings.NewProvider(conn)

	engine := gin.New()
	RegisterAdminRoutes(engine, conn, authCfg, ledgerSvc, provider)

	token, errToken := security.GenerateAdminToken(testJWTSecret, admin.ID, admin.Username, authCfg.TokenTTL())
	if errToken != nil {
		t.Fatalf("generate token: %v", errToken)
	}

	return &apiFixture{db: conn, ledger: ledgerSvc, engine: engine, token: token}
}

func (f *apiFixture) request(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), errDecode)
	}
	return body
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.request(t, http.MethodGet, "/healthz", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/v0/admin/auth/login", gin.H{"username": "root", "password": "admin-password"}, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["token"] == "" || body["token"] == nil {
		t.Fatalf("expected token in response: %v", body)
	}

	rec = f.request(t, http.MethodPost, "/v0/admin/auth/login", gin.H{"username": "root", "password": "wrong"}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodGet, "/v0/admin/points/config", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v0/admin/points/config", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	recBad := httptest.NewRecorder()
	f.engine.ServeHTTP(recBad, req)
	if recBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", recBad.Code)
	}
}

func TestAdjustAddAndSubtract(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/v0/admin/points/users/42/adjust",
		gin.H{"type": "add", "amount": 500, "reason": "customer support goodwill credit"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["new_balance"].(float64) != 500 {
		t.Fatalf("add: unexpected balance %v", body["new_balance"])
	}

	rec = f.request(t, http.MethodPost, "/v0/admin/points/users/42/adjust",
		gin.H{"type": "subtract", "amount": 200, "reason": "correction of mistaken credit"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("subtract: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	if body["new_balance"].(float64) != 300 {
		t.Fatalf("subtract: unexpected balance %v", body["new_balance"])
	}
}

func TestAdjustValidation(t *testing.T) {
	f := newAPIFixture(t)

	cases := []gin.H{
		{"type": "add", "amount": 0, "reason": "amount is below the minimum"},
		{"type": "add", "amount": 10, "reason": "too short"},
		{"type": "transfer", "amount": 10, "reason": "unsupported adjustment type"},
	}
	for _, body := range cases {
		rec := f.request(t, http.MethodPost, "/v0/admin/points/users/1/adjust", body, true)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %v: expected 400, got %d", body, rec.Code)
		}
	}

	rec := f.request(t, http.MethodPost, "/v0/admin/points/users/not-a-number/adjust",
		gin.H{"type": "add", "amount": 10, "reason": "valid reason but bad user id"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad user id, got %d", rec.Code)
	}
}

func TestAdjustSubtractInsufficientBalance(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/v0/admin/points/users/9/adjust",
		gin.H{"type": "subtract", "amount": 50, "reason": "deduction from empty account"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for overdraw, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBalanceAndHistoryEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	for i := 0; i < 3; i++ {
		rec := f.request(t, http.MethodPost, "/v0/admin/points/users/7/adjust",
			gin.H{"type": "add", "amount": 100, "reason": fmt.Sprintf("promotional credit batch %d", i)}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("seed adjust %d: got %d", i, rec.Code)
		}
	}

	rec := f.request(t, http.MethodGet, "/v0/admin/points/users/7/balance", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["current_balance"].(float64) != 300 {
		t.Fatalf("balance: unexpected %v", body["current_balance"])
	}

	rec = f.request(t, http.MethodGet, "/v0/admin/points/users/7/transactions?page=1&limit=2", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["total"].(float64) != 3 {
		t.Fatalf("history: unexpected total %v", body["total"])
	}
	rows := body["transactions"].([]any)
	if len(rows) != 2 {
		t.Fatalf("history: expected 2 rows, got %d", len(rows))
	}

	rec = f.request(t, http.MethodGet, "/v0/admin/points/users/7/transactions?transaction_type=MANUAL_SUBTRACT", nil, true)
	body = decodeBody(t, rec)
	if body["total"].(float64) != 0 {
		t.Fatalf("filtered history: unexpected total %v", body["total"])
	}
}

func TestConfigEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodGet, "/v0/admin/points/config", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get config: expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["point_earning_rate"].(float64) != 1 {
		t.Fatalf("unexpected default rate %v", body["point_earning_rate"])
	}

	rec = f.request(t, http.MethodPut, "/v0/admin/points/config",
		gin.H{"point_earning_rate": 5, "point_expiration_months": 6}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("update config: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	if body["point_earning_rate"].(float64) != 5 || body["point_expiration_months"].(float64) != 6 {
		t.Fatalf("unexpected updated config: %v", body)
	}

	rec = f.request(t, http.MethodPut, "/v0/admin/points/config", gin.H{"point_earning_rate": 250}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range rate, got %d", rec.Code)
	}
}

package server

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"StableVault/internal/engine"
	fpmath "StableVault/internal/math"
	"StableVault/internal/observability"
	"StableVault/internal/oracle"
	"StableVault/internal/token"
)

type apiRig struct {
	t       *testing.T
	srv     *Server
	bank    *token.MemBank
	stable  *token.MemStable
	health  *observability.HealthChecker
	custody uuid.UUID
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()

	custody := uuid.New()
	bank := token.NewMemBank(custody)
	stable := token.NewMemStable(custody)
	feed := oracle.NewStaticFeed(new(big.Int).Mul(big.NewInt(2000), fpmath.FeedPrecision), time.Now())

	eng, err := engine.New(engine.Config{
		Assets:  []string{"WETH"},
		Feeds:   []oracle.PriceFeed{feed},
		Bank:    bank,
		Stable:  stable,
		Custody: custody,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	health := observability.NewHealthChecker()
	health.SetReady(true)
	return &apiRig{
		t:       t,
		srv:     New(eng, nil, health, zerolog.Nop(), nil),
		bank:    bank,
		stable:  stable,
		health:  health,
		custody: custody,
	}
}

func (r *apiRig) do(method, path, body string) *httptest.ResponseRecorder {
	r.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

// ============================================================================
// Test: deposit / query round trip
// ============================================================================

func TestDepositAndQueryRoundTrip(t *testing.T) {
	rig := newAPIRig(t)
	user := uuid.New()
	rig.bank.Credit("WETH", user, new(big.Int).Mul(big.NewInt(10), fpmath.Precision))

	rec := rig.do(http.MethodPost, "/v1/collateral/deposit",
		fmt.Sprintf(`{"user":%q,"asset":"WETH","amount":"10"}`, user))
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d, body %s", rec.Code, rec.Body)
	}

	rec = rig.do(http.MethodGet, "/v1/accounts/"+user.String()+"/collateral/WETH", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("balance status = %d", rec.Code)
	}
	if body := decodeJSON(t, rec); body["balance"] != "10" {
		t.Errorf("balance = %v, want 10", body["balance"])
	}

	rec = rig.do(http.MethodGet, "/v1/accounts/"+user.String(), "")
	body := decodeJSON(t, rec)
	if body["collateral_value_in_usd"] != "20000" {
		t.Errorf("collateral value = %v, want 20000", body["collateral_value_in_usd"])
	}
	if body["total_debt_minted"] != "0" {
		t.Errorf("debt = %v, want 0", body["total_debt_minted"])
	}
}

func TestHealthFactorEndpoint(t *testing.T) {
	rig := newAPIRig(t)
	user := uuid.New()
	rig.bank.Credit("WETH", user, new(big.Int).Mul(big.NewInt(10), fpmath.Precision))

	rec := rig.do(http.MethodPost, "/v1/collateral/deposit-and-mint",
		fmt.Sprintf(`{"user":%q,"asset":"WETH","amount":"10","mint_amount":"10000"}`, user))
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit-and-mint status = %d, body %s", rec.Code, rec.Body)
	}

	rec = rig.do(http.MethodGet, "/v1/accounts/"+user.String()+"/health", "")
	body := decodeJSON(t, rec)
	if body["health_factor"] != "1" {
		t.Errorf("health factor = %v, want 1", body["health_factor"])
	}
	if body["healthy"] != true {
		t.Errorf("healthy = %v, want true", body["healthy"])
	}

	// A fresh account has no debt: the factor reports as "max".
	rec = rig.do(http.MethodGet, "/v1/accounts/"+uuid.NewString()+"/health", "")
	if body := decodeJSON(t, rec); body["health_factor"] != "max" {
		t.Errorf("zero-debt health factor = %v, want max", body["health_factor"])
	}
}

// ============================================================================
// Test: validation and error mapping
// ============================================================================

func TestBadRequests(t *testing.T) {
	rig := newAPIRig(t)
	user := uuid.NewString()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"bad user id", http.MethodGet, "/v1/accounts/not-a-uuid", ""},
		{"malformed body", http.MethodPost, "/v1/debt/mint", `{"user":`},
		{"unknown field", http.MethodPost, "/v1/debt/mint", fmt.Sprintf(`{"user":%q,"amount":"1","extra":true}`, user)},
		{"non-numeric amount", http.MethodPost, "/v1/debt/mint", fmt.Sprintf(`{"user":%q,"amount":"abc"}`, user)},
		{"too many decimals", http.MethodGet, "/v1/assets/WETH/usd-value?amount=1.0000000000000000001", ""},
		{"unknown asset", http.MethodGet, "/v1/assets/DOGE/usd-value?amount=1", ""},
	}
	for _, tc := range cases {
		rec := rig.do(tc.method, tc.path, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400 (body %s)", tc.name, rec.Code, rec.Body)
		}
	}
}

func TestHealthFactorBreachMapsToConflict(t *testing.T) {
	rig := newAPIRig(t)
	user := uuid.New()

	rec := rig.do(http.MethodPost, "/v1/debt/mint",
		fmt.Sprintf(`{"user":%q,"amount":"100"}`, user))
	if rec.Code != http.StatusConflict {
		t.Errorf("uncollateralized mint status = %d, want 409 (body %s)", rec.Code, rec.Body)
	}
}

func TestConversionEndpoints(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(http.MethodGet, "/v1/assets/WETH/usd-value?amount=15", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("usd-value status = %d", rec.Code)
	}
	if body := decodeJSON(t, rec); body["usd_value"] != "30000" {
		t.Errorf("usd_value = %v, want 30000", body["usd_value"])
	}

	rec = rig.do(http.MethodGet, "/v1/assets/WETH/token-amount?usd=100", "")
	if body := decodeJSON(t, rec); body["token_amount"] != "0.05" {
		t.Errorf("token_amount = %v, want 0.05", body["token_amount"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	rig := newAPIRig(t)

	if rec := rig.do(http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	if rec := rig.do(http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}
	rig.health.SetReady(false)
	if rec := rig.do(http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status after SetReady(false) = %d, want 503", rec.Code)
	}
}

func TestOperationsWithoutJournal(t *testing.T) {
	rig := newAPIRig(t)
	if rec := rig.do(http.MethodGet, "/v1/operations", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("operations without journal status = %d, want 503", rec.Code)
	}
}

func TestAssetsAndParams(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(http.MethodGet, "/v1/assets", "")
	var assets struct {
		Assets []struct {
			Asset  string `json:"asset"`
			Quoted bool   `json:"quoted"`
			Price  string `json:"price"`
			Stale  bool   `json:"stale"`
		} `json:"assets"`
		MaxPriceAge string `json:"max_price_age"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &assets); err != nil {
		t.Fatalf("decode assets: %v", err)
	}
	if len(assets.Assets) != 1 || assets.Assets[0].Asset != "WETH" {
		t.Fatalf("assets = %+v, want one WETH entry", assets.Assets)
	}
	weth := assets.Assets[0]
	if !weth.Quoted || weth.Price != "2000" || weth.Stale {
		t.Errorf("WETH feed = %+v, want fresh quote at 2000", weth)
	}
	if assets.MaxPriceAge == "" {
		t.Error("max_price_age missing from assets response")
	}

	rec = rig.do(http.MethodGet, "/v1/params", "")
	body := decodeJSON(t, rec)
	if body["liquidation_threshold"] != "50" || body["liquidation_bonus"] != "10" {
		t.Errorf("unexpected params: %v", body)
	}
	if body["custody"] != rig.custody.String() {
		t.Errorf("custody = %v, want %s", body["custody"], rig.custody)
	}
}

func TestAssetsReportsUnquotedFeed(t *testing.T) {
	custody := uuid.New()
	eng, err := engine.New(engine.Config{
		Assets:  []string{"WETH"},
		Feeds:   []oracle.PriceFeed{oracle.NewStreamFeed()},
		Bank:    token.NewMemBank(custody),
		Stable:  token.NewMemStable(custody),
		Custody: custody,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	health := observability.NewHealthChecker()
	srv := New(eng, nil, health, zerolog.Nop(), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/assets", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var assets struct {
		Assets []struct {
			Asset  string `json:"asset"`
			Quoted bool   `json:"quoted"`
		} `json:"assets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &assets); err != nil {
		t.Fatalf("decode assets: %v", err)
	}
	if len(assets.Assets) != 1 || assets.Assets[0].Quoted {
		t.Errorf("assets = %+v, want one unquoted WETH entry", assets.Assets)
	}
}

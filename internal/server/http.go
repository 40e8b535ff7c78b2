package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"StableVault/internal/engine"
	"StableVault/internal/ledger"
	fpmath "StableVault/internal/math"
	"StableVault/internal/observability"
	"StableVault/internal/oracle"
	"StableVault/internal/query"
)

// Server exposes the vault engine over an HTTP JSON API. Amounts cross the
// wire as decimal strings ("1.5" of an 18-decimal asset) and are parsed
// exactly; anything that does not fit the asset's precision is a 400.
type Server struct {
	eng     *engine.Engine
	history *query.HistoryService
	health  *observability.HealthChecker
	log     zerolog.Logger
	metrics *observability.Metrics

	router http.Handler
}

// New builds the router. history may be nil when the journal is not
// available (in-memory runs); the operations endpoint then reports 503.
func New(eng *engine.Engine, history *query.HistoryService, health *observability.HealthChecker, log zerolog.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		eng:     eng,
		history: history,
		health:  health,
		log:     log,
		metrics: metrics,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/params", s.handleParams)
		r.Get("/assets", s.handleAssets)
		r.Get("/assets/{asset}/usd-value", s.handleUsdValue)
		r.Get("/assets/{asset}/token-amount", s.handleTokenAmount)

		r.Get("/accounts/{user}", s.handleAccount)
		r.Get("/accounts/{user}/health", s.handleHealthFactor)
		r.Get("/accounts/{user}/collateral/{asset}", s.handleCollateralBalance)

		r.Post("/collateral/deposit", s.handleDeposit)
		r.Post("/collateral/redeem", s.handleRedeem)
		r.Post("/collateral/deposit-and-mint", s.handleDepositAndMint)
		r.Post("/collateral/redeem-for-dsc", s.handleRedeemForDsc)
		r.Post("/debt/mint", s.handleMint)
		r.Post("/debt/burn", s.handleBurn)
		r.Post("/liquidations", s.handleLiquidate)

		r.Get("/operations", s.handleOperations)
	})

	s.router = r
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

// instrument records per-endpoint request counts and latency.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(endpoint, http.StatusText(ww.Status())).Inc()
		s.metrics.HTTPDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

// ============================================================================
// Queries
// ============================================================================

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	p := engine.CurrentParams()
	writeJSON(w, http.StatusOK, map[string]string{
		"liquidation_threshold": p.LiquidationThreshold.String(),
		"liquidation_precision": p.LiquidationPrecision.String(),
		"liquidation_bonus":     p.LiquidationBonus.String(),
		"precision":             p.Precision.String(),
		"min_health_factor":     p.MinHealthFactor.String(),
		"custody":               s.eng.Custody().String(),
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	feeds := s.eng.AssetFeeds(r.Context())

	assets := make([]map[string]interface{}, 0, len(feeds))
	for _, f := range feeds {
		entry := map[string]interface{}{
			"asset":  f.Asset,
			"quoted": f.Price != nil,
		}
		if f.Price != nil {
			entry["price"] = fpmath.FormatUnits(f.Price, fpmath.FeedDecimals)
			entry["as_of"] = f.AsOf.UTC().Format(time.RFC3339)
			entry["stale"] = f.Stale
		}
		assets = append(assets, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets":        assets,
		"max_price_age": s.eng.Oracle().MaxAge().String(),
	})
}

func (s *Server) handleUsdValue(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	amount, err := fpmath.ParseUnits(r.URL.Query().Get("amount"), fpmath.AccountingDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount: "+err.Error())
		return
	}

	value, err := s.eng.GetUsdValue(r.Context(), asset, amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":     asset,
		"amount":    fpmath.FormatUnits(amount, fpmath.AccountingDecimals),
		"usd_value": fpmath.FormatUnits(value, fpmath.AccountingDecimals),
	})
}

func (s *Server) handleTokenAmount(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	usd, err := fpmath.ParseUnits(r.URL.Query().Get("usd"), fpmath.AccountingDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid usd amount: "+err.Error())
		return
	}

	amount, err := s.eng.GetTokenAmountFromUsd(r.Context(), asset, usd)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":        asset,
		"usd":          fpmath.FormatUnits(usd, fpmath.AccountingDecimals),
		"token_amount": fpmath.FormatUnits(amount, fpmath.AccountingDecimals),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := parseUser(w, r)
	if !ok {
		return
	}
	info, err := s.eng.GetAccountInformation(r.Context(), user)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user":                    user.String(),
		"total_debt_minted":       fpmath.FormatUnits(info.TotalDebtMinted, fpmath.AccountingDecimals),
		"collateral_value_in_usd": fpmath.FormatUnits(info.CollateralValueInUsd, fpmath.AccountingDecimals),
	})
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, r *http.Request) {
	user, ok := parseUser(w, r)
	if !ok {
		return
	}
	hf, err := s.eng.GetHealthFactor(r.Context(), user)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := map[string]interface{}{
		"user":    user.String(),
		"healthy": hf.Cmp(engine.MinHealthFactor) >= 0,
	}
	// A zero-debt position's factor is effectively infinite; the raw number
	// is noise, so flag it instead.
	if hf.Cmp(engine.MaxHealthFactor) == 0 {
		resp["health_factor"] = "max"
	} else {
		resp["health_factor"] = fpmath.FormatUnits(hf, fpmath.AccountingDecimals)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCollateralBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := parseUser(w, r)
	if !ok {
		return
	}
	asset := chi.URLParam(r, "asset")
	bal, err := s.eng.GetCollateralBalanceOfUser(user, asset)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user":    user.String(),
		"asset":   asset,
		"balance": fpmath.FormatUnits(bal, fpmath.AccountingDecimals),
	})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "operation journal not available")
		return
	}

	after, err := parseInt64Query(r, "after", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid after: "+err.Error())
		return
	}
	limit, err := parseInt64Query(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit: "+err.Error())
		return
	}

	records, err := s.history.Operations(r.Context(), after, int(limit), r.URL.Query().Get("event_type"))
	if err != nil {
		s.log.Error().Err(err).Msg("operation history query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	head, err := s.history.HeadSequence(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("head sequence query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operations":    records,
		"head_sequence": head,
	})
}

// ============================================================================
// Mutations
// ============================================================================

type collateralRequest struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type debtRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type depositAndMintRequest struct {
	User       string `json:"user"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	MintAmount string `json:"mint_amount"`
}

type redeemForDscRequest struct {
	User         string `json:"user"`
	Asset        string `json:"asset"`
	RedeemAmount string `json:"redeem_amount"`
	BurnAmount   string `json:"burn_amount"`
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	Debtor      string `json:"debtor"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debt_to_cover"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	user, amount, ok := s.decodeCollateralRequest(w, r, &req)
	if !ok {
		return
	}
	if err := s.eng.DepositCollateral(r.Context(), user, req.Asset, amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	user, amount, ok := s.decodeCollateralRequest(w, r, &req)
	if !ok {
		return
	}
	if err := s.eng.RedeemCollateral(r.Context(), user, req.Asset, amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, amount, ok := parseUserAmount(w, req.User, req.Amount)
	if !ok {
		return
	}
	if err := s.eng.MintDsc(r.Context(), user, amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, amount, ok := parseUserAmount(w, req.User, req.Amount)
	if !ok {
		return
	}
	if err := s.eng.BurnDsc(r.Context(), user, amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, r *http.Request) {
	var req depositAndMintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, amount, ok := parseUserAmount(w, req.User, req.Amount)
	if !ok {
		return
	}
	mintAmount, err := fpmath.ParseUnits(req.MintAmount, fpmath.AccountingDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mint_amount: "+err.Error())
		return
	}
	if err := s.eng.DepositCollateralAndMintDsc(r.Context(), user, req.Asset, amount, mintAmount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleRedeemForDsc(w http.ResponseWriter, r *http.Request) {
	var req redeemForDscRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, redeemAmount, ok := parseUserAmount(w, req.User, req.RedeemAmount)
	if !ok {
		return
	}
	burnAmount, err := fpmath.ParseUnits(req.BurnAmount, fpmath.AccountingDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid burn_amount: "+err.Error())
		return
	}
	if err := s.eng.RedeemCollateralForDsc(r.Context(), user, req.Asset, redeemAmount, burnAmount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	liquidator, err := uuid.Parse(req.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid liquidator id")
		return
	}
	debtor, err := uuid.Parse(req.Debtor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid debtor id")
		return
	}
	debtToCover, err := fpmath.ParseUnits(req.DebtToCover, fpmath.AccountingDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid debt_to_cover: "+err.Error())
		return
	}
	if err := s.eng.Liquidate(r.Context(), liquidator, req.Asset, debtor, debtToCover); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// ============================================================================
// Helpers
// ============================================================================

func (s *Server) decodeCollateralRequest(w http.ResponseWriter, r *http.Request, req *collateralRequest) (uuid.UUID, *big.Int, bool) {
	if !decodeBody(w, r, req) {
		return uuid.Nil, nil, false
	}
	return parseUserAmount(w, req.User, req.Amount)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseInt64Query(r *http.Request, key string, def int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", raw)
	}
	return v, nil
}

func parseUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	user, err := uuid.Parse(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return uuid.Nil, false
	}
	return user, true
}

func parseUserAmount(w http.ResponseWriter, userStr, amountStr string) (uuid.UUID, *big.Int, bool) {
	user, err := uuid.Parse(userStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return uuid.Nil, nil, false
	}
	amount, err := fpmath.ParseUnits(amountStr, fpmath.AccountingDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount: "+err.Error())
		return uuid.Nil, nil, false
	}
	return user, amount, true
}

// writeEngineError maps engine error taxonomy onto HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrZeroAmount),
		errors.Is(err, engine.ErrUnsupportedAsset),
		errors.Is(err, ledger.ErrNonPositiveAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrHealthFactorBroken),
		errors.Is(err, engine.ErrHealthFactorOk),
		errors.Is(err, engine.ErrHealthFactorNotImproved),
		errors.Is(err, ledger.ErrInsufficientCollateral),
		errors.Is(err, ledger.ErrInsufficientDebt):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrNoQuote),
		errors.Is(err, oracle.ErrNoFeed),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, engine.ErrReentrantCall):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

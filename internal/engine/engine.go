package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"StableVault/internal/event"
	"StableVault/internal/ledger"
	fpmath "StableVault/internal/math"
	"StableVault/internal/observability"
	"StableVault/internal/oracle"
	"StableVault/internal/token"
)

// Operation names for metrics and logs.
const (
	opDepositCollateral = "deposit_collateral"
	opMintDsc           = "mint_dsc"
	opDepositAndMint    = "deposit_collateral_and_mint_dsc"
	opRedeemCollateral  = "redeem_collateral"
	opBurnDsc           = "burn_dsc"
	opRedeemForDsc      = "redeem_collateral_for_dsc"
	opLiquidate         = "liquidate"
)

// Config wires an Engine together. Assets and Feeds are parallel lists; a
// length mismatch fails construction.
type Config struct {
	Assets      []string
	Feeds       []oracle.PriceFeed
	MaxPriceAge time.Duration

	Bank    token.AssetBank
	Stable  token.StableToken
	Custody uuid.UUID

	// StartSequence is the highest sequence already journaled; new
	// notifications number from StartSequence+1. Zero for a fresh journal.
	StartSequence int64

	// PersistChan receives an envelope per committed notification with a
	// blocking send: if the persistence worker stalls, operations stall.
	// PublishChan is best-effort: full channel drops the envelope.
	// Either may be nil.
	PersistChan chan<- event.Envelope
	PublishChan chan<- event.Envelope

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Engine is the orchestrator over the collateral and debt ledgers. It owns
// them exclusively: all access goes through its methods. Mutating
// operations run one at a time behind a held/free flag; a collaborator
// calling back into a mutating operation while one is in flight fails
// closed with ErrReentrantCall. Each operation follows
// checks-effects-interactions: validate, mutate ledger state, evaluate the
// health-factor post-conditions, and only then touch the external token
// systems, compensating the ledger if an external call fails.
type Engine struct {
	assets []string
	feeds  map[string]oracle.PriceFeed
	oracle *oracle.Adapter

	collateral *ledger.CollateralLedger
	debt       *ledger.DebtLedger

	bank    token.AssetBank
	stable  token.StableToken
	custody uuid.UUID

	// mu guards the ledger maps; inFlight serializes mutating operations
	// and trips the reentrancy check before mu can deadlock.
	mu       sync.RWMutex
	inFlight atomic.Bool

	sequence int64
	staged   []event.Event

	persistChan chan<- event.Envelope
	publishChan chan<- event.Envelope

	now     func() time.Time
	log     zerolog.Logger
	metrics *observability.Metrics
}

func New(cfg Config) (*Engine, error) {
	if len(cfg.Assets) != len(cfg.Feeds) {
		return nil, fmt.Errorf("%w: %d assets, %d feeds", ErrFeedLengthMismatch, len(cfg.Assets), len(cfg.Feeds))
	}
	if cfg.Bank == nil || cfg.Stable == nil {
		return nil, fmt.Errorf("engine: bank and stable token collaborators are required")
	}

	feeds := make(map[string]oracle.PriceFeed, len(cfg.Assets))
	assets := make([]string, 0, len(cfg.Assets))
	for i, asset := range cfg.Assets {
		if _, dup := feeds[asset]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, asset)
		}
		feeds[asset] = cfg.Feeds[i]
		assets = append(assets, asset)
	}

	maxAge := cfg.MaxPriceAge
	if maxAge <= 0 {
		maxAge = 3 * time.Hour
	}

	return &Engine{
		assets:      assets,
		feeds:       feeds,
		oracle:      oracle.NewAdapter(feeds, maxAge),
		collateral:  ledger.NewCollateralLedger(),
		debt:        ledger.NewDebtLedger(),
		bank:        cfg.Bank,
		stable:      cfg.Stable,
		custody:     cfg.Custody,
		sequence:    cfg.StartSequence,
		persistChan: cfg.PersistChan,
		publishChan: cfg.PublishChan,
		now:         time.Now,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// Oracle exposes the price adapter for conversion queries.
func (e *Engine) Oracle() *oracle.Adapter {
	return e.oracle
}

// Custody returns the engine's custody account identity.
func (e *Engine) Custody() uuid.UUID {
	return e.custody
}

// ============================================================================
// Public mutating operations
// ============================================================================

// DepositCollateral records amount of asset for user and pulls it into
// custody. Deposits only improve health, so no health check runs.
func (e *Engine) DepositCollateral(ctx context.Context, user uuid.UUID, asset string, amount *big.Int) error {
	return e.run(opDepositCollateral, func() error {
		return e.depositCollateral(ctx, user, asset, amount)
	})
}

// MintDsc issues amount of new stable units to user, provided the
// position's post-mint health factor stays at or above the minimum.
func (e *Engine) MintDsc(ctx context.Context, user uuid.UUID, amount *big.Int) error {
	return e.run(opMintDsc, func() error {
		return e.mintDsc(ctx, user, amount)
	})
}

// DepositCollateralAndMintDsc composes a deposit and a mint atomically:
// failure of either half rolls back the whole action.
func (e *Engine) DepositCollateralAndMintDsc(ctx context.Context, user uuid.UUID, asset string, amount, mintAmount *big.Int) error {
	return e.run(opDepositAndMint, func() error {
		if err := e.depositCollateral(ctx, user, asset, amount); err != nil {
			return err
		}
		if err := e.mintDsc(ctx, user, mintAmount); err != nil {
			e.compensateDeposit(ctx, user, asset, amount)
			return err
		}
		return nil
	})
}

// RedeemCollateral returns amount of asset from user's position to user,
// provided their health factor stays at or above the minimum afterwards.
func (e *Engine) RedeemCollateral(ctx context.Context, user uuid.UUID, asset string, amount *big.Int) error {
	return e.run(opRedeemCollateral, func() error {
		return e.redeemCollateral(ctx, user, asset, amount)
	})
}

// BurnDsc retires amount of user's debt, collecting the stable units from
// user.
func (e *Engine) BurnDsc(ctx context.Context, user uuid.UUID, amount *big.Int) error {
	return e.run(opBurnDsc, func() error {
		return e.burnDscFor(ctx, user, user, amount)
	})
}

// RedeemCollateralForDsc burns burnAmount of user's debt and then redeems
// redeemAmount of asset, atomically. The burn runs first so the health
// check after the redeem sees the reduced debt.
func (e *Engine) RedeemCollateralForDsc(ctx context.Context, user uuid.UUID, asset string, redeemAmount, burnAmount *big.Int) error {
	return e.run(opRedeemForDsc, func() error {
		if err := e.burnDscFor(ctx, user, user, burnAmount); err != nil {
			return err
		}
		if err := e.redeemCollateral(ctx, user, asset, redeemAmount); err != nil {
			e.compensateBurn(ctx, user, burnAmount)
			return err
		}
		return nil
	})
}

// Liquidate covers debtToCover of debtor's debt on behalf of the caller,
// seizing the equivalent collateral plus the liquidation bonus. See
// liquidation.go.
func (e *Engine) Liquidate(ctx context.Context, liquidator uuid.UUID, asset string, debtor uuid.UUID, debtToCover *big.Int) error {
	return e.run(opLiquidate, func() error {
		return e.liquidate(ctx, liquidator, asset, debtor, debtToCover)
	})
}

// ============================================================================
// Operation internals
// ============================================================================

func (e *Engine) depositCollateral(ctx context.Context, user uuid.UUID, asset string, amount *big.Int) error {
	if err := e.guardAmount(amount); err != nil {
		return err
	}
	if err := e.guardAsset(asset); err != nil {
		return err
	}

	e.mu.Lock()
	err := e.collateral.Add(user, asset, amount)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if err := e.bank.TransferFrom(ctx, asset, user, e.custody, amount); err != nil {
		e.mu.Lock()
		_ = e.collateral.Sub(user, asset, amount)
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.stage(&event.CollateralDeposited{User: user, Asset: asset, Amount: fpmath.Clone(amount)})
	return nil
}

// compensateDeposit unwinds a committed deposit half when the second half
// of a combined operation fails.
func (e *Engine) compensateDeposit(ctx context.Context, user uuid.UUID, asset string, amount *big.Int) {
	e.mu.Lock()
	_ = e.collateral.Sub(user, asset, amount)
	e.mu.Unlock()
	if err := e.bank.Transfer(ctx, asset, user, amount); err != nil {
		e.log.Error().Err(err).
			Str("user", user.String()).
			Str("asset", asset).
			Msg("deposit compensation transfer failed; custody holds unowed collateral")
	}
}

func (e *Engine) mintDsc(ctx context.Context, user uuid.UUID, amount *big.Int) error {
	if err := e.guardAmount(amount); err != nil {
		return err
	}

	e.mu.Lock()
	err := e.debt.Add(user, amount)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	undo := func() {
		e.mu.Lock()
		_ = e.debt.Sub(user, amount)
		e.mu.Unlock()
	}

	if err := e.requireHealthy(ctx, user); err != nil {
		undo()
		return err
	}

	if err := e.stable.Mint(ctx, user, amount); err != nil {
		undo()
		return fmt.Errorf("%w: %v", ErrMintFailed, err)
	}

	e.stage(&event.DebtMinted{User: user, Amount: fpmath.Clone(amount)})
	return nil
}

func (e *Engine) redeemCollateral(ctx context.Context, user uuid.UUID, asset string, amount *big.Int) error {
	if err := e.guardAmount(amount); err != nil {
		return err
	}
	if err := e.guardAsset(asset); err != nil {
		return err
	}

	e.mu.Lock()
	err := e.collateral.Sub(user, asset, amount)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	undo := func() {
		e.mu.Lock()
		_ = e.collateral.Add(user, asset, amount)
		e.mu.Unlock()
	}

	if err := e.requireHealthy(ctx, user); err != nil {
		undo()
		return err
	}

	if err := e.bank.Transfer(ctx, asset, user, amount); err != nil {
		undo()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.stage(&event.CollateralRedeemed{RedeemedFrom: user, RedeemedTo: user, Asset: asset, Amount: fpmath.Clone(amount)})
	return nil
}

// burnDscFor retires amount of onBehalfOf's debt, collecting the stable
// units from payer. The two differ during liquidation.
func (e *Engine) burnDscFor(ctx context.Context, onBehalfOf, payer uuid.UUID, amount *big.Int) error {
	if err := e.guardAmount(amount); err != nil {
		return err
	}

	e.mu.Lock()
	err := e.debt.Sub(onBehalfOf, amount)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	undo := func() {
		e.mu.Lock()
		_ = e.debt.Add(onBehalfOf, amount)
		e.mu.Unlock()
	}

	// Burning only improves health; the check stays for defense-in-depth.
	if err := e.requireHealthy(ctx, onBehalfOf); err != nil {
		undo()
		return err
	}

	if err := e.stable.TransferFrom(ctx, payer, e.custody, amount); err != nil {
		undo()
		return fmt.Errorf("%w: collect: %v", ErrBurnFailed, err)
	}
	if err := e.stable.Burn(ctx, amount); err != nil {
		// Collection succeeded but retirement failed; hand the units back.
		if rerr := e.stable.Transfer(ctx, payer, amount); rerr != nil {
			e.log.Error().Err(rerr).
				Str("payer", payer.String()).
				Msg("burn compensation transfer failed; custody holds uncollected stable units")
		}
		undo()
		return fmt.Errorf("%w: %v", ErrBurnFailed, err)
	}

	e.stage(&event.DebtBurned{OnBehalfOf: onBehalfOf, Payer: payer, Amount: fpmath.Clone(amount)})
	return nil
}

// compensateBurn re-mints units retired by a committed burn half when the
// second half of a combined operation fails.
func (e *Engine) compensateBurn(ctx context.Context, user uuid.UUID, amount *big.Int) {
	e.mu.Lock()
	_ = e.debt.Add(user, amount)
	e.mu.Unlock()
	if err := e.stable.Mint(ctx, user, amount); err != nil {
		e.log.Error().Err(err).
			Str("user", user.String()).
			Msg("burn compensation mint failed; user's stable balance is short")
	}
}

// ============================================================================
// Guards, health checks, commit machinery
// ============================================================================

func (e *Engine) guardAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}

func (e *Engine) guardAsset(asset string) error {
	if _, ok := e.feeds[asset]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset)
	}
	return nil
}

// requireHealthy fails with ErrHealthFactorBroken when user's health factor
// is below the minimum.
func (e *Engine) requireHealthy(ctx context.Context, user uuid.UUID) error {
	hf, err := e.healthFactorOf(ctx, user)
	if err != nil {
		return err
	}
	if !healthy(hf) {
		return fmt.Errorf("%w: user %s health factor %s", ErrHealthFactorBroken, user, hf)
	}
	return nil
}

func (e *Engine) healthFactorOf(ctx context.Context, user uuid.UUID) (*big.Int, error) {
	debt, value, err := e.accountInformation(ctx, user)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.HealthFactorChecks.Inc()
	}
	return CalculateHealthFactor(debt, value), nil
}

// accountInformation values user's whole position: outstanding debt and the
// sum of every registered asset's deposit converted to units of account.
// Assets with a zero balance contribute zero and skip the feed read.
func (e *Engine) accountInformation(ctx context.Context, user uuid.UUID) (debt, collateralValue *big.Int, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	debt = e.debt.Debt(user)
	collateralValue = new(big.Int)

	for _, asset := range e.assets {
		balance := e.collateral.Balance(user, asset)
		if balance.Sign() == 0 {
			continue
		}
		v, verr := e.oracle.UsdValue(ctx, asset, balance)
		if verr != nil {
			if errors.Is(verr, oracle.ErrStalePrice) && e.metrics != nil {
				e.metrics.OracleStale.WithLabelValues(asset).Inc()
			}
			return nil, nil, verr
		}
		collateralValue.Add(collateralValue, v)
	}
	return debt, collateralValue, nil
}

// run wraps a mutating operation: reentrancy guard, staged-event commit,
// metrics, logging. fn runs with the flag held and must leave the ledgers
// unchanged when it returns an error.
func (e *Engine) run(op string, fn func() error) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		if e.metrics != nil {
			e.metrics.OpsRejected.WithLabelValues(op, "reentrant").Inc()
		}
		return ErrReentrantCall
	}
	defer e.inFlight.Store(false)

	start := time.Now()
	e.staged = e.staged[:0]

	if err := fn(); err != nil {
		e.staged = e.staged[:0]
		reason := rejectReason(err)
		if e.metrics != nil {
			e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
		}
		e.log.Warn().Str("op", op).Str("reason", reason).Err(err).Msg("operation rejected")
		return err
	}

	e.commitStaged()

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		e.metrics.Sequence.Set(float64(e.sequence))
	}
	e.log.Info().Str("op", op).Int64("sequence", e.sequence).Msg("operation committed")
	return nil
}

// stage queues a notification for emission once the enclosing operation
// commits. Events staged by a failed operation are discarded.
func (e *Engine) stage(payload event.Event) {
	e.staged = append(e.staged, payload)
}

func (e *Engine) commitStaged() {
	for _, payload := range e.staged {
		e.sequence++
		env := event.Envelope{
			Sequence:  e.sequence,
			Timestamp: e.now(),
			Payload:   payload,
		}

		if e.persistChan != nil {
			// Blocking: persistence backpressure stalls the engine rather
			// than losing journal rows.
			e.persistChan <- env
		}
		if e.publishChan != nil {
			select {
			case e.publishChan <- env:
			default:
				if e.metrics != nil {
					e.metrics.PublishDrops.Inc()
				}
			}
		}
	}
	e.staged = e.staged[:0]
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrUnsupportedAsset):
		return "unsupported_asset"
	case errors.Is(err, ErrHealthFactorBroken):
		return "health_factor_broken"
	case errors.Is(err, ErrHealthFactorOk):
		return "health_factor_ok"
	case errors.Is(err, ErrHealthFactorNotImproved):
		return "health_factor_not_improved"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrMintFailed):
		return "mint_failed"
	case errors.Is(err, ErrBurnFailed):
		return "burn_failed"
	case errors.Is(err, ledger.ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, ledger.ErrInsufficientDebt):
		return "insufficient_debt"
	case errors.Is(err, ledger.ErrNonPositiveAmount):
		return "zero_amount"
	case errors.Is(err, oracle.ErrStalePrice):
		return "oracle_stale"
	case errors.Is(err, oracle.ErrNoFeed), errors.Is(err, oracle.ErrNoQuote), errors.Is(err, oracle.ErrInvalidPrice):
		return "oracle_unavailable"
	default:
		return "internal"
	}
}

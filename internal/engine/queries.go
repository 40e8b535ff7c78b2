package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// AccountInformation is the valued snapshot of one user's position.
type AccountInformation struct {
	TotalDebtMinted      *big.Int
	CollateralValueInUsd *big.Int
}

// GetAccountInformation returns user's outstanding debt and total
// collateral value in units of account.
func (e *Engine) GetAccountInformation(ctx context.Context, user uuid.UUID) (AccountInformation, error) {
	debt, value, err := e.accountInformation(ctx, user)
	if err != nil {
		return AccountInformation{}, err
	}
	return AccountInformation{TotalDebtMinted: debt, CollateralValueInUsd: value}, nil
}

// GetHealthFactor returns user's current health factor.
func (e *Engine) GetHealthFactor(ctx context.Context, user uuid.UUID) (*big.Int, error) {
	return e.healthFactorOf(ctx, user)
}

// GetUsdValue converts amount of asset into units of account at the
// current price.
func (e *Engine) GetUsdValue(ctx context.Context, asset string, amount *big.Int) (*big.Int, error) {
	if err := e.guardAsset(asset); err != nil {
		return nil, err
	}
	return e.oracle.UsdValue(ctx, asset, amount)
}

// GetTokenAmountFromUsd converts usdAmount into an amount of asset at the
// current price.
func (e *Engine) GetTokenAmountFromUsd(ctx context.Context, asset string, usdAmount *big.Int) (*big.Int, error) {
	if err := e.guardAsset(asset); err != nil {
		return nil, err
	}
	return e.oracle.TokenAmountFromUsd(ctx, asset, usdAmount)
}

// GetCollateralBalanceOfUser returns user's deposited balance of asset.
func (e *Engine) GetCollateralBalanceOfUser(user uuid.UUID, asset string) (*big.Int, error) {
	if err := e.guardAsset(asset); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collateral.Balance(user, asset), nil
}

// CollateralAssets returns the registered asset set in registration order.
func (e *Engine) CollateralAssets() []string {
	out := make([]string, len(e.assets))
	copy(out, e.assets)
	return out
}

// AssetFeed describes one registered asset's price-feed binding: the latest
// quote, if any, and whether it is past the staleness bound. A nil Price
// means the feed has not yet observed a quote.
type AssetFeed struct {
	Asset string
	Price *big.Int
	AsOf  time.Time
	Stale bool
}

// AssetFeeds reports the feed binding for every registered asset in
// registration order. Quotes are reported raw: a stale quote still carries
// its price and timestamp.
func (e *Engine) AssetFeeds(ctx context.Context) []AssetFeed {
	out := make([]AssetFeed, 0, len(e.assets))
	for _, asset := range e.assets {
		af := AssetFeed{Asset: asset}
		if q, stale, err := e.oracle.FeedStatus(ctx, asset); err == nil {
			af.Price = q.Price
			af.AsOf = q.AsOf
			af.Stale = stale
		}
		out = append(out, af)
	}
	return out
}

// AuditSolvency verifies the system invariant: the value of all deposited
// collateral covers the outstanding stable token supply. It also refreshes
// the solvency gauges. Liquidation can legitimately break this when prices
// crash faster than liquidators act; the audit reports it rather than
// halting anything.
func (e *Engine) AuditSolvency(ctx context.Context) error {
	e.mu.RLock()
	totalValue := new(big.Int)
	for _, asset := range e.assets {
		deposited := e.collateral.TotalDeposited(asset)
		if deposited.Sign() == 0 {
			continue
		}
		v, err := e.oracle.UsdValue(ctx, asset, deposited)
		if err != nil {
			e.mu.RUnlock()
			return err
		}
		totalValue.Add(totalValue, v)
	}
	totalMinted := e.debt.TotalMinted()
	e.mu.RUnlock()

	supply := e.stable.TotalSupply()

	if e.metrics != nil {
		e.metrics.TotalCollateralValue.Set(wholeUnits(totalValue))
		e.metrics.TotalDebt.Set(wholeUnits(totalMinted))
	}

	if totalValue.Cmp(supply) < 0 {
		if e.metrics != nil {
			e.metrics.SolvencyViolations.Inc()
		}
		e.log.Error().
			Str("collateral_value", totalValue.String()).
			Str("stable_supply", supply.String()).
			Msg("solvency invariant violated")
		return fmt.Errorf("engine: collateral value %s below stable supply %s", totalValue, supply)
	}
	return nil
}

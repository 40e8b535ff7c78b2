package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"StableVault/internal/event"
	fpmath "StableVault/internal/math"
)

// liquidate covers debtToCover of debtor's outstanding debt on the
// liquidator's behalf. The liquidator pays debtToCover in stable units,
// which are retired, and receives the equivalent amount of the chosen
// collateral asset plus a bonus as the incentive.
//
// Preconditions: the debtor's health factor must be below the minimum
// before the action, and strictly higher after it. A position so deep
// underwater that the seizure would exceed the debtor's deposited balance
// fails on the collateral ledger instead of seizing a partial amount.
func (e *Engine) liquidate(ctx context.Context, liquidator uuid.UUID, asset string, debtor uuid.UUID, debtToCover *big.Int) error {
	if err := e.guardAmount(debtToCover); err != nil {
		return err
	}
	if err := e.guardAsset(asset); err != nil {
		return err
	}

	hfBefore, err := e.healthFactorOf(ctx, debtor)
	if err != nil {
		return err
	}
	if healthy(hfBefore) {
		return fmt.Errorf("%w: debtor %s health factor %s", ErrHealthFactorOk, debtor, hfBefore)
	}

	tokenAmount, err := e.oracle.TokenAmountFromUsd(ctx, asset, debtToCover)
	if err != nil {
		return err
	}
	bonus := fpmath.MulDiv(tokenAmount, LiquidationBonus, LiquidationPrecision)
	seized := new(big.Int).Add(tokenAmount, bonus)

	// Effects: move the seizure and the debt retirement onto the books.
	e.mu.Lock()
	if err := e.collateral.Sub(debtor, asset, seized); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := e.debt.Sub(debtor, debtToCover); err != nil {
		_ = e.collateral.Add(debtor, asset, seized)
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	undo := func() {
		e.mu.Lock()
		_ = e.collateral.Add(debtor, asset, seized)
		_ = e.debt.Add(debtor, debtToCover)
		e.mu.Unlock()
	}

	// Checks: the action must leave the debtor strictly better off, and
	// must not break the liquidator's own position if they carry debt.
	hfAfter, err := e.healthFactorOf(ctx, debtor)
	if err != nil {
		undo()
		return err
	}
	if hfAfter.Cmp(hfBefore) <= 0 {
		undo()
		return fmt.Errorf("%w: %s -> %s", ErrHealthFactorNotImproved, hfBefore, hfAfter)
	}
	e.mu.RLock()
	liquidatorDebt := e.debt.Debt(liquidator)
	e.mu.RUnlock()
	if liquidatorDebt.Sign() > 0 {
		if err := e.requireHealthy(ctx, liquidator); err != nil {
			undo()
			return err
		}
	}

	// Interactions: collect the payment, retire it, pay out the seizure.
	if err := e.stable.TransferFrom(ctx, liquidator, e.custody, debtToCover); err != nil {
		undo()
		return fmt.Errorf("%w: collect: %v", ErrBurnFailed, err)
	}
	if err := e.stable.Burn(ctx, debtToCover); err != nil {
		if rerr := e.stable.Transfer(ctx, liquidator, debtToCover); rerr != nil {
			e.log.Error().Err(rerr).
				Str("liquidator", liquidator.String()).
				Msg("liquidation compensation transfer failed; custody holds uncollected stable units")
		}
		undo()
		return fmt.Errorf("%w: %v", ErrBurnFailed, err)
	}
	if err := e.bank.Transfer(ctx, asset, liquidator, seized); err != nil {
		// Payment already retired; re-issue it to the liquidator and
		// restore the books.
		if rerr := e.stable.Mint(ctx, liquidator, debtToCover); rerr != nil {
			e.log.Error().Err(rerr).
				Str("liquidator", liquidator.String()).
				Msg("liquidation compensation mint failed; liquidator's stable balance is short")
		}
		undo()
		return fmt.Errorf("%w: payout: %v", ErrTransferFailed, err)
	}

	e.stage(&event.CollateralRedeemed{RedeemedFrom: debtor, RedeemedTo: liquidator, Asset: asset, Amount: fpmath.Clone(seized)})
	e.stage(&event.DebtBurned{OnBehalfOf: debtor, Payer: liquidator, Amount: fpmath.Clone(debtToCover)})
	e.stage(&event.PositionLiquidated{
		Liquidator:       liquidator,
		Debtor:           debtor,
		Asset:            asset,
		DebtCovered:      fpmath.Clone(debtToCover),
		CollateralSeized: fpmath.Clone(seized),
		Bonus:            fpmath.Clone(bonus),
	})

	if e.metrics != nil {
		e.metrics.LiquidationsCompleted.WithLabelValues(asset).Inc()
		e.metrics.CollateralSeized.WithLabelValues(asset).Add(wholeUnits(seized))
	}
	e.log.Info().
		Str("liquidator", liquidator.String()).
		Str("debtor", debtor.String()).
		Str("asset", asset).
		Str("debt_covered", fpmath.FormatUnits(debtToCover, fpmath.AccountingDecimals)).
		Str("collateral_seized", fpmath.FormatUnits(seized, fpmath.AccountingDecimals)).
		Msg("position liquidated")
	return nil
}

// wholeUnits collapses an 18-decimal amount to a float of whole units for
// gauge and counter exposition. Precision loss is acceptable there.
func wholeUnits(amount *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), new(big.Float).SetInt(fpmath.Precision)).Float64()
	return f
}

package engine

import (
	"math/big"

	fpmath "StableVault/internal/math"
)

// CalculateHealthFactor returns the safety ratio of a position: the
// haircut-adjusted collateral value divided by outstanding debt, scaled by
// Precision. A zero-debt position has no risk and returns MaxHealthFactor,
// which also keeps the division total.
func CalculateHealthFactor(debtMinted, collateralValueUsd *big.Int) *big.Int {
	if debtMinted.Sign() == 0 {
		return fpmath.Clone(MaxHealthFactor)
	}
	adjusted := fpmath.MulDiv(collateralValueUsd, LiquidationThreshold, LiquidationPrecision)
	return fpmath.MulDiv(adjusted, Precision, debtMinted)
}

// healthy reports whether hf meets the minimum health factor.
func healthy(hf *big.Int) bool {
	return hf.Cmp(MinHealthFactor) >= 0
}

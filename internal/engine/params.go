package engine

import (
	"math/big"

	fpmath "StableVault/internal/math"
)

// Risk parameters. The threshold/precision pair is the haircut applied to
// raw collateral value before it counts toward debt capacity: 50/100 means
// a position must be 200% collateralized at nominal value. All are package
// constants; none of these values may be mutated.
var (
	// LiquidationThreshold over LiquidationPrecision is the collateral
	// haircut fraction.
	LiquidationThreshold = big.NewInt(50)
	LiquidationPrecision = big.NewInt(100)

	// LiquidationBonus over LiquidationPrecision is the extra collateral a
	// liquidator receives on top of the covered debt's value.
	LiquidationBonus = big.NewInt(10)

	// Precision normalizes health factors: exactly 1 * Precision is the
	// minimum acceptable health factor.
	Precision       = fpmath.Precision
	MinHealthFactor = fpmath.Precision

	// MaxHealthFactor is returned for zero-debt positions: maximally
	// healthy, never liquidatable.
	MaxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Params is the read-only constant bundle exposed for registry
// introspection.
type Params struct {
	LiquidationThreshold *big.Int `json:"liquidation_threshold"`
	LiquidationPrecision *big.Int `json:"liquidation_precision"`
	LiquidationBonus     *big.Int `json:"liquidation_bonus"`
	Precision            *big.Int `json:"precision"`
	MinHealthFactor      *big.Int `json:"min_health_factor"`
}

// CurrentParams returns a copy of the engine's risk constants.
func CurrentParams() Params {
	return Params{
		LiquidationThreshold: fpmath.Clone(LiquidationThreshold),
		LiquidationPrecision: fpmath.Clone(LiquidationPrecision),
		LiquidationBonus:     fpmath.Clone(LiquidationBonus),
		Precision:            fpmath.Clone(Precision),
		MinHealthFactor:      fpmath.Clone(MinHealthFactor),
	}
}

package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	fpmath "StableVault/internal/math"
)

var (
	// ErrNonPositiveAmount is returned for zero or negative amounts. Every
	// ledger mutation moves a strictly positive quantity.
	ErrNonPositiveAmount = errors.New("amount must be positive")

	// ErrInsufficientCollateral is the checked-underflow error for
	// withdrawing more than the recorded position.
	ErrInsufficientCollateral = errors.New("insufficient collateral balance")
)

// Position keys a user's deposited amount in one asset.
type Position struct {
	User  uuid.UUID
	Asset string
}

// CollateralLedger records deposited collateral per (user, asset). It is
// pure bookkeeping: the orchestrator owns it exclusively and performs the
// physical asset movement around these mutations. Positions are created
// implicitly on first deposit and may settle at zero; they are never
// removed.
type CollateralLedger struct {
	deposits map[Position]*big.Int
}

func NewCollateralLedger() *CollateralLedger {
	return &CollateralLedger{
		deposits: make(map[Position]*big.Int),
	}
}

// Add increases the (user, asset) position by amount.
func (l *CollateralLedger) Add(user uuid.UUID, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("collateral add: %w", ErrNonPositiveAmount)
	}
	key := Position{User: user, Asset: asset}
	if v, ok := l.deposits[key]; ok {
		v.Add(v, amount)
		return nil
	}
	l.deposits[key] = fpmath.Clone(amount)
	return nil
}

// Sub decreases the (user, asset) position by amount. The underflow check is
// explicit: taking more than the recorded balance fails and leaves the
// position untouched.
func (l *CollateralLedger) Sub(user uuid.UUID, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("collateral sub: %w", ErrNonPositiveAmount)
	}
	key := Position{User: user, Asset: asset}
	v, ok := l.deposits[key]
	if !ok || v.Cmp(amount) < 0 {
		return fmt.Errorf("collateral sub %s for user %s: %w", asset, user, ErrInsufficientCollateral)
	}
	v.Sub(v, amount)
	return nil
}

// Balance returns a copy of the user's deposited amount of asset.
func (l *CollateralLedger) Balance(user uuid.UUID, asset string) *big.Int {
	if v, ok := l.deposits[Position{User: user, Asset: asset}]; ok {
		return fpmath.Clone(v)
	}
	return new(big.Int)
}

// TotalDeposited sums the asset's deposits across all users. Used by the
// solvency audit.
func (l *CollateralLedger) TotalDeposited(asset string) *big.Int {
	total := new(big.Int)
	for key, v := range l.deposits {
		if key.Asset == asset {
			total.Add(total, v)
		}
	}
	return total
}

package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	fpmath "StableVault/internal/math"
)

// ErrInsufficientDebt is the checked-underflow error for burning more than
// the user's outstanding minted amount.
var ErrInsufficientDebt = errors.New("insufficient debt balance")

// DebtLedger records stable-token units minted per user. Pure bookkeeping;
// issuance and retirement of the actual token happen in the orchestrator.
type DebtLedger struct {
	minted      map[uuid.UUID]*big.Int
	totalMinted *big.Int
}

func NewDebtLedger() *DebtLedger {
	return &DebtLedger{
		minted:      make(map[uuid.UUID]*big.Int),
		totalMinted: new(big.Int),
	}
}

// Add increases the user's minted amount.
func (l *DebtLedger) Add(user uuid.UUID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("debt add: %w", ErrNonPositiveAmount)
	}
	if v, ok := l.minted[user]; ok {
		v.Add(v, amount)
	} else {
		l.minted[user] = fpmath.Clone(amount)
	}
	l.totalMinted.Add(l.totalMinted, amount)
	return nil
}

// Sub decreases the user's minted amount, failing on underflow; debt can
// never go negative.
func (l *DebtLedger) Sub(user uuid.UUID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("debt sub: %w", ErrNonPositiveAmount)
	}
	v, ok := l.minted[user]
	if !ok || v.Cmp(amount) < 0 {
		return fmt.Errorf("debt sub for user %s: %w", user, ErrInsufficientDebt)
	}
	v.Sub(v, amount)
	l.totalMinted.Sub(l.totalMinted, amount)
	return nil
}

// Debt returns a copy of the user's outstanding minted amount.
func (l *DebtLedger) Debt(user uuid.UUID) *big.Int {
	if v, ok := l.minted[user]; ok {
		return fpmath.Clone(v)
	}
	return new(big.Int)
}

// TotalMinted returns a copy of total outstanding debt across all users.
func (l *DebtLedger) TotalMinted() *big.Int {
	return fpmath.Clone(l.totalMinted)
}

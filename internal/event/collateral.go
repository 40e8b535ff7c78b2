package event

import (
	"math/big"

	"github.com/google/uuid"
)

// CollateralDeposited is emitted after a deposit commits.
type CollateralDeposited struct {
	User   uuid.UUID `json:"user"`
	Asset  string    `json:"asset"`
	Amount *big.Int  `json:"amount"`
}

func (e *CollateralDeposited) EventType() Type { return TypeCollateralDeposited }

func (e *CollateralDeposited) Subject() string { return "collateral.deposited" }

// CollateralRedeemed is emitted after collateral leaves a position. It names
// both the position debited and the recipient: a liquidation debits the
// debtor and pays the liquidator, so the two differ.
type CollateralRedeemed struct {
	RedeemedFrom uuid.UUID `json:"redeemed_from"`
	RedeemedTo   uuid.UUID `json:"redeemed_to"`
	Asset        string    `json:"asset"`
	Amount       *big.Int  `json:"amount"`
}

func (e *CollateralRedeemed) EventType() Type { return TypeCollateralRedeemed }

func (e *CollateralRedeemed) Subject() string { return "collateral.redeemed" }

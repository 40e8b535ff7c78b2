package event

import (
	"math/big"

	"github.com/google/uuid"
)

// DebtMinted is emitted after new stable units are issued against a
// position.
type DebtMinted struct {
	User   uuid.UUID `json:"user"`
	Amount *big.Int  `json:"amount"`
}

func (e *DebtMinted) EventType() Type { return TypeDebtMinted }

func (e *DebtMinted) Subject() string { return "debt.minted" }

// DebtBurned is emitted after stable units are retired. Payer funds the
// burn; OnBehalfOf is the position whose debt decreased (they differ during
// liquidation).
type DebtBurned struct {
	OnBehalfOf uuid.UUID `json:"on_behalf_of"`
	Payer      uuid.UUID `json:"payer"`
	Amount     *big.Int  `json:"amount"`
}

func (e *DebtBurned) EventType() Type { return TypeDebtBurned }

func (e *DebtBurned) Subject() string { return "debt.burned" }

// PositionLiquidated is emitted after a successful liquidation.
type PositionLiquidated struct {
	Liquidator       uuid.UUID `json:"liquidator"`
	Debtor           uuid.UUID `json:"debtor"`
	Asset            string    `json:"asset"`
	DebtCovered      *big.Int  `json:"debt_covered"`
	CollateralSeized *big.Int  `json:"collateral_seized"`
	Bonus            *big.Int  `json:"bonus"`
}

func (e *PositionLiquidated) EventType() Type { return TypePositionLiquidated }

func (e *PositionLiquidated) Subject() string { return "liquidation.completed" }

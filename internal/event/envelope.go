package event

import (
	"time"
)

// Type discriminator for event payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeCollateralDeposited
	TypeCollateralRedeemed
	TypeDebtMinted
	TypeDebtBurned
	TypePositionLiquidated
)

// Envelope wraps every committed-state-change notification the engine
// emits. Sequence is a global monotonic counter assigned under the
// operation lock, so envelope order matches commit order.
type Envelope struct {
	Sequence  int64
	Timestamp time.Time
	Payload   Event
}

// Event is the interface all notification payloads implement.
type Event interface {
	// EventType returns the discriminator.
	EventType() Type

	// Subject returns the outbound stream subject suffix for this event.
	Subject() string
}

func (t Type) String() string {
	switch t {
	case TypeCollateralDeposited:
		return "CollateralDeposited"
	case TypeCollateralRedeemed:
		return "CollateralRedeemed"
	case TypeDebtMinted:
		return "DebtMinted"
	case TypeDebtBurned:
		return "DebtBurned"
	case TypePositionLiquidated:
		return "PositionLiquidated"
	default:
		return "Unknown"
	}
}

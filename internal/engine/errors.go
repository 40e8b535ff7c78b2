package engine

import "errors"

// Error taxonomy for the engine's public operations. Every failure mode is
// a distinguishable sentinel so callers can branch with errors.Is; wrapped
// causes carry the collaborator detail.
var (
	// Input validation.
	ErrZeroAmount         = errors.New("amount must be more than zero")
	ErrUnsupportedAsset   = errors.New("asset is not registered as collateral")
	ErrFeedLengthMismatch = errors.New("asset and price feed lists must be the same length")
	ErrDuplicateAsset     = errors.New("asset registered twice")

	// State invariants.
	ErrHealthFactorBroken      = errors.New("health factor below minimum")
	ErrHealthFactorOk          = errors.New("health factor is not below minimum")
	ErrHealthFactorNotImproved = errors.New("liquidation did not improve health factor")

	// External interactions.
	ErrTransferFailed = errors.New("collateral transfer failed")
	ErrMintFailed     = errors.New("stable token mint failed")
	ErrBurnFailed     = errors.New("stable token burn failed")

	// Concurrency.
	ErrReentrantCall = errors.New("reentrant call into a mutating operation")
)

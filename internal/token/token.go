package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/google/uuid"
)

// Collaborator interfaces for the two external token systems the engine
// moves value through. The engine never mints, burns or transfers anything
// itself; it only records ledger state and drives these interfaces.

var (
	// ErrInsufficientFunds is returned when a transfer or burn would take an
	// account below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownAsset is returned by a bank that has no balance book for the
	// requested asset.
	ErrUnknownAsset = errors.New("unknown asset")
)

// AssetBank moves fungible collateral assets between accounts. Amounts are
// 18-decimal scaled integers. The implicit sender of Transfer is the
// account the bank was bound to at construction (the engine's custody
// account), mirroring the caller-is-sender semantics of token contracts.
type AssetBank interface {
	// TransferFrom moves amount of asset from one account to another on the
	// custody holder's authority.
	TransferFrom(ctx context.Context, asset string, from, to uuid.UUID, amount *big.Int) error

	// Transfer moves amount of asset from the custody account to another.
	Transfer(ctx context.Context, asset string, to uuid.UUID, amount *big.Int) error
}

// StableToken is the mintable/burnable stable-value token the engine issues
// debt in. Burn retires units held by the custody account.
type StableToken interface {
	Mint(ctx context.Context, to uuid.UUID, amount *big.Int) error
	Burn(ctx context.Context, amount *big.Int) error
	Transfer(ctx context.Context, to uuid.UUID, amount *big.Int) error
	TransferFrom(ctx context.Context, from, to uuid.UUID, amount *big.Int) error

	// TotalSupply reports total outstanding units. Used by solvency audits.
	TotalSupply() *big.Int
}

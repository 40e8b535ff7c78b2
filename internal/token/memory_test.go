package token_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"StableVault/internal/token"
)

func TestMemBank_TransferFrom(t *testing.T) {
	custody := uuid.New()
	alice := uuid.New()
	bank := token.NewMemBank(custody)
	bank.Credit("WETH", alice, big.NewInt(1000))

	err := bank.TransferFrom(context.Background(), "WETH", alice, custody, big.NewInt(400))
	if err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}

	if got := bank.BalanceOf("WETH", alice); got.Int64() != 600 {
		t.Errorf("alice balance: got %s, want 600", got)
	}
	if got := bank.BalanceOf("WETH", custody); got.Int64() != 400 {
		t.Errorf("custody balance: got %s, want 400", got)
	}
}

func TestMemBank_InsufficientFunds(t *testing.T) {
	custody := uuid.New()
	alice := uuid.New()
	bank := token.NewMemBank(custody)
	bank.Credit("WETH", alice, big.NewInt(10))

	err := bank.TransferFrom(context.Background(), "WETH", alice, custody, big.NewInt(11))
	if !errors.Is(err, token.ErrInsufficientFunds) {
		t.Errorf("got %v, want ErrInsufficientFunds", err)
	}
	if got := bank.BalanceOf("WETH", alice); got.Int64() != 10 {
		t.Errorf("failed transfer mutated balance: %s", got)
	}
}

func TestMemStable_MintBurn(t *testing.T) {
	custody := uuid.New()
	alice := uuid.New()
	stable := token.NewMemStable(custody)
	ctx := context.Background()

	if err := stable.Mint(ctx, alice, big.NewInt(500)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if got := stable.TotalSupply(); got.Int64() != 500 {
		t.Errorf("supply after mint: got %s, want 500", got)
	}

	if err := stable.TransferFrom(ctx, alice, custody, big.NewInt(200)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if err := stable.Burn(ctx, big.NewInt(200)); err != nil {
		t.Fatalf("Burn: %v", err)
	}

	if got := stable.TotalSupply(); got.Int64() != 300 {
		t.Errorf("supply after burn: got %s, want 300", got)
	}
	if got := stable.BalanceOf(alice); got.Int64() != 300 {
		t.Errorf("alice balance: got %s, want 300", got)
	}
}

func TestMemStable_BurnMoreThanHeld(t *testing.T) {
	custody := uuid.New()
	stable := token.NewMemStable(custody)

	err := stable.Burn(context.Background(), big.NewInt(1))
	if !errors.Is(err, token.ErrInsufficientFunds) {
		t.Errorf("got %v, want ErrInsufficientFunds", err)
	}
}

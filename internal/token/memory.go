package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	fpmath "StableVault/internal/math"
)

// In-memory implementations of the collaborator interfaces. They back the
// test suite and local single-process runs; a deployment against real token
// rails swaps these for adapters with the same interfaces.

type balanceKey struct {
	Asset   string
	Account uuid.UUID
}

// MemBank is a thread-safe in-memory AssetBank.
type MemBank struct {
	mu       sync.Mutex
	custody  uuid.UUID
	balances map[balanceKey]*big.Int
}

func NewMemBank(custody uuid.UUID) *MemBank {
	return &MemBank{
		custody:  custody,
		balances: make(map[balanceKey]*big.Int),
	}
}

// Credit seeds an account balance. Test/bootstrap helper.
func (b *MemBank) Credit(asset string, account uuid.UUID, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(asset, account, amount)
}

// BalanceOf returns a copy of the account's balance for asset.
func (b *MemBank) BalanceOf(asset string, account uuid.UUID) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.balances[balanceKey{asset, account}]; ok {
		return fpmath.Clone(v)
	}
	return new(big.Int)
}

func (b *MemBank) TransferFrom(ctx context.Context, asset string, from, to uuid.UUID, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(asset, from, to, amount)
}

func (b *MemBank) Transfer(ctx context.Context, asset string, to uuid.UUID, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(asset, b.custody, to, amount)
}

func (b *MemBank) move(asset string, from, to uuid.UUID, amount *big.Int) error {
	have, ok := b.balances[balanceKey{asset, from}]
	if !ok || have.Cmp(amount) < 0 {
		return fmt.Errorf("bank transfer %s: %w", asset, ErrInsufficientFunds)
	}
	have.Sub(have, amount)
	b.add(asset, to, amount)
	return nil
}

func (b *MemBank) add(asset string, account uuid.UUID, amount *big.Int) {
	key := balanceKey{asset, account}
	if v, ok := b.balances[key]; ok {
		v.Add(v, amount)
		return
	}
	b.balances[key] = fpmath.Clone(amount)
}

// MemStable is a thread-safe in-memory StableToken. Burn retires units held
// by the custody account.
type MemStable struct {
	mu       sync.Mutex
	custody  uuid.UUID
	supply   *big.Int
	balances map[uuid.UUID]*big.Int
}

func NewMemStable(custody uuid.UUID) *MemStable {
	return &MemStable{
		custody:  custody,
		supply:   new(big.Int),
		balances: make(map[uuid.UUID]*big.Int),
	}
}

func (s *MemStable) Mint(ctx context.Context, to uuid.UUID, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(to, amount)
	s.supply.Add(s.supply, amount)
	return nil
}

func (s *MemStable) Burn(ctx context.Context, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	have, ok := s.balances[s.custody]
	if !ok || have.Cmp(amount) < 0 {
		return fmt.Errorf("stable burn: %w", ErrInsufficientFunds)
	}
	have.Sub(have, amount)
	s.supply.Sub(s.supply, amount)
	return nil
}

func (s *MemStable) Transfer(ctx context.Context, to uuid.UUID, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.move(s.custody, to, amount)
}

func (s *MemStable) TransferFrom(ctx context.Context, from, to uuid.UUID, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.move(from, to, amount)
}

func (s *MemStable) TotalSupply() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fpmath.Clone(s.supply)
}

// BalanceOf returns a copy of the account's stable-token balance.
func (s *MemStable) BalanceOf(account uuid.UUID) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.balances[account]; ok {
		return fpmath.Clone(v)
	}
	return new(big.Int)
}

func (s *MemStable) move(from, to uuid.UUID, amount *big.Int) error {
	have, ok := s.balances[from]
	if !ok || have.Cmp(amount) < 0 {
		return fmt.Errorf("stable transfer: %w", ErrInsufficientFunds)
	}
	have.Sub(have, amount)
	s.add(to, amount)
	return nil
}

func (s *MemStable) add(account uuid.UUID, amount *big.Int) {
	if v, ok := s.balances[account]; ok {
		v.Add(v, amount)
		return
	}
	s.balances[account] = fpmath.Clone(amount)
}

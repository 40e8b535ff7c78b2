package ledger_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"StableVault/internal/ledger"
)

// ============================================================================
// Test: CollateralLedger
// ============================================================================

func TestCollateralLedger_InitialBalanceZero(t *testing.T) {
	cl := ledger.NewCollateralLedger()
	if got := cl.Balance(uuid.New(), "WETH"); got.Sign() != 0 {
		t.Errorf("initial balance should be 0, got %s", got)
	}
}

func TestCollateralLedger_AddSub(t *testing.T) {
	cl := ledger.NewCollateralLedger()
	user := uuid.New()

	if err := cl.Add(user, "WETH", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := cl.Sub(user, "WETH", big.NewInt(400_000)); err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if got := cl.Balance(user, "WETH"); got.Int64() != 600_000 {
		t.Errorf("balance: got %s, want 600000", got)
	}
}

func TestCollateralLedger_SubUnderflow(t *testing.T) {
	cl := ledger.NewCollateralLedger()
	user := uuid.New()
	cl.Add(user, "WETH", big.NewInt(100))

	err := cl.Sub(user, "WETH", big.NewInt(101))
	if !errors.Is(err, ledger.ErrInsufficientCollateral) {
		t.Errorf("got %v, want ErrInsufficientCollateral", err)
	}
	if got := cl.Balance(user, "WETH"); got.Int64() != 100 {
		t.Errorf("failed sub mutated balance: %s", got)
	}
}

func TestCollateralLedger_RejectsNonPositive(t *testing.T) {
	cl := ledger.NewCollateralLedger()
	user := uuid.New()

	if err := cl.Add(user, "WETH", big.NewInt(0)); !errors.Is(err, ledger.ErrNonPositiveAmount) {
		t.Errorf("Add(0): got %v, want ErrNonPositiveAmount", err)
	}
	if err := cl.Add(user, "WETH", big.NewInt(-5)); !errors.Is(err, ledger.ErrNonPositiveAmount) {
		t.Errorf("Add(-5): got %v, want ErrNonPositiveAmount", err)
	}
	if err := cl.Sub(user, "WETH", big.NewInt(0)); !errors.Is(err, ledger.ErrNonPositiveAmount) {
		t.Errorf("Sub(0): got %v, want ErrNonPositiveAmount", err)
	}
}

func TestCollateralLedger_BalanceIsACopy(t *testing.T) {
	cl := ledger.NewCollateralLedger()
	user := uuid.New()
	cl.Add(user, "WETH", big.NewInt(50))

	cl.Balance(user, "WETH").SetInt64(9999)

	if got := cl.Balance(user, "WETH"); got.Int64() != 50 {
		t.Errorf("caller mutated internal balance: %s", got)
	}
}

func TestCollateralLedger_TotalDeposited(t *testing.T) {
	cl := ledger.NewCollateralLedger()
	cl.Add(uuid.New(), "WETH", big.NewInt(30))
	cl.Add(uuid.New(), "WETH", big.NewInt(70))
	cl.Add(uuid.New(), "WBTC", big.NewInt(5))

	if got := cl.TotalDeposited("WETH"); got.Int64() != 100 {
		t.Errorf("TotalDeposited(WETH): got %s, want 100", got)
	}
	if got := cl.TotalDeposited("WBTC"); got.Int64() != 5 {
		t.Errorf("TotalDeposited(WBTC): got %s, want 5", got)
	}
}

func TestCollateralLedger_PositionMaySettleAtZero(t *testing.T) {
	cl := ledger.NewCollateralLedger()
	user := uuid.New()
	cl.Add(user, "WETH", big.NewInt(10))

	if err := cl.Sub(user, "WETH", big.NewInt(10)); err != nil {
		t.Fatalf("Sub to zero: %v", err)
	}
	if got := cl.Balance(user, "WETH"); got.Sign() != 0 {
		t.Errorf("balance after full withdrawal: got %s, want 0", got)
	}
}

// ============================================================================
// Test: DebtLedger
// ============================================================================

func TestDebtLedger_AddSub(t *testing.T) {
	dl := ledger.NewDebtLedger()
	user := uuid.New()

	if err := dl.Add(user, big.NewInt(1000)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := dl.Sub(user, big.NewInt(300)); err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if got := dl.Debt(user); got.Int64() != 700 {
		t.Errorf("debt: got %s, want 700", got)
	}
	if got := dl.TotalMinted(); got.Int64() != 700 {
		t.Errorf("total minted: got %s, want 700", got)
	}
}

func TestDebtLedger_SubUnderflow(t *testing.T) {
	dl := ledger.NewDebtLedger()
	user := uuid.New()
	dl.Add(user, big.NewInt(100))

	err := dl.Sub(user, big.NewInt(200))
	if !errors.Is(err, ledger.ErrInsufficientDebt) {
		t.Errorf("got %v, want ErrInsufficientDebt", err)
	}
	if got := dl.Debt(user); got.Int64() != 100 {
		t.Errorf("failed sub mutated debt: %s", got)
	}
	if got := dl.TotalMinted(); got.Int64() != 100 {
		t.Errorf("failed sub mutated total: %s", got)
	}
}

func TestDebtLedger_UnknownUserHasNoDebt(t *testing.T) {
	dl := ledger.NewDebtLedger()
	if got := dl.Debt(uuid.New()); got.Sign() != 0 {
		t.Errorf("unknown user debt: got %s, want 0", got)
	}
	if err := dl.Sub(uuid.New(), big.NewInt(1)); !errors.Is(err, ledger.ErrInsufficientDebt) {
		t.Errorf("Sub on unknown user: got %v, want ErrInsufficientDebt", err)
	}
}

func TestDebtLedger_TotalAcrossUsers(t *testing.T) {
	dl := ledger.NewDebtLedger()
	dl.Add(uuid.New(), big.NewInt(400))
	dl.Add(uuid.New(), big.NewInt(600))

	if got := dl.TotalMinted(); got.Int64() != 1000 {
		t.Errorf("total minted: got %s, want 1000", got)
	}
}

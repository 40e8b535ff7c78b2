package math

import (
	"fmt"
	"math/big"
	"strings"
)

// Fixed-point conventions. All internal accounting uses 18-decimal scaled
// integers ("wad"). Price feeds report 8 decimals and are scaled up by
// FeedPrecisionGap before entering any arithmetic expression, so precisions
// are never mixed without an explicit scale factor.
const (
	AccountingDecimals = 18
	FeedDecimals       = 8
)

var (
	// Precision is the canonical accounting scale (1e18).
	Precision = pow10(AccountingDecimals)

	// FeedPrecision is the raw price-feed scale (1e8).
	FeedPrecision = pow10(FeedDecimals)

	// FeedPrecisionGap lifts a raw feed price to accounting precision (1e10).
	FeedPrecisionGap = pow10(AccountingDecimals - FeedDecimals)
)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MulDiv computes a * b / denom with the full product held in a big.Int,
// so the multiply happens before the divide and no intermediate truncation
// or overflow can occur. The result truncates toward zero.
func MulDiv(a, b, denom *big.Int) *big.Int {
	if denom.Sign() == 0 {
		panic("fpmath: MulDiv by zero denominator")
	}
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, denom)
}

// Clone returns an independent copy of v. Ledger stores hand out copies so
// callers cannot alias internal balances.
func Clone(v *big.Int) *big.Int {
	return new(big.Int).Set(v)
}

// ParseUnits converts a decimal string such as "15", "0.05" or "2000.1" into
// a scaled integer with the given number of decimals. Excess fractional
// digits are rejected rather than silently truncated.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("parse units: empty amount")
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("parse units: malformed amount %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("parse units: %q has more than %d decimal places", s, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("parse units: malformed amount %q", s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// FormatUnits renders a scaled integer as a decimal string, trimming
// trailing fractional zeros ("30000", "0.05").
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Abs(v)
	if v.Sign() < 0 {
		sign = "-"
	}

	scale := pow10(decimals)
	whole, frac := new(big.Int).QuoRem(abs, scale, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := frac.String()
	if pad := decimals - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")
	return sign + whole.String() + "." + fracStr
}

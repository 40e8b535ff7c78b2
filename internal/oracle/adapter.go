package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	fpmath "StableVault/internal/math"
)

var (
	// ErrNoFeed means no price feed is registered for the asset.
	ErrNoFeed = errors.New("no price feed registered for asset")

	// ErrStalePrice means the feed's latest quote is older than the
	// configured maximum age.
	ErrStalePrice = errors.New("stale price")

	// ErrInvalidPrice means the feed served a non-positive price. A zero
	// price would put a zero denominator into the inverse conversion.
	ErrInvalidPrice = errors.New("invalid price")
)

// Adapter normalizes per-asset price feeds into the engine's accounting
// precision and rejects quotes older than maxAge. It is stateless per call:
// every valuation goes back to the feed.
type Adapter struct {
	feeds  map[string]PriceFeed
	maxAge time.Duration

	// now is swappable so staleness can be tested deterministically.
	now func() time.Time
}

func NewAdapter(feeds map[string]PriceFeed, maxAge time.Duration) *Adapter {
	owned := make(map[string]PriceFeed, len(feeds))
	for asset, feed := range feeds {
		owned[asset] = feed
	}
	return &Adapter{
		feeds:  owned,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// WithClock overrides the staleness clock. Test hook.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// MaxAge returns the staleness bound quotes are checked against.
func (a *Adapter) MaxAge() time.Duration {
	return a.maxAge
}

// PriceOf returns the 8-decimal price of asset and the quote timestamp.
// Fails with ErrNoFeed for an unregistered asset and ErrStalePrice when the
// quote is older than the staleness bound.
func (a *Adapter) PriceOf(ctx context.Context, asset string) (*big.Int, time.Time, error) {
	feed, ok := a.feeds[asset]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: %s", ErrNoFeed, asset)
	}

	q, err := feed.LatestPrice(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("feed %s: %w", asset, err)
	}
	if age := a.now().Sub(q.AsOf); age > a.maxAge {
		return nil, q.AsOf, fmt.Errorf("%w: %s quote is %s old (max %s)", ErrStalePrice, asset, age, a.maxAge)
	}
	if q.Price == nil || q.Price.Sign() <= 0 {
		return nil, q.AsOf, fmt.Errorf("%w: %s quote %s is not positive", ErrInvalidPrice, asset, q.Price)
	}
	return q.Price, q.AsOf, nil
}

// FeedStatus reports the latest quote for asset together with whether it is
// past the staleness bound. Unlike PriceOf it does not fail on a stale or
// non-positive quote; registry introspection wants the raw feed state.
func (a *Adapter) FeedStatus(ctx context.Context, asset string) (Quote, bool, error) {
	feed, ok := a.feeds[asset]
	if !ok {
		return Quote{}, false, fmt.Errorf("%w: %s", ErrNoFeed, asset)
	}
	q, err := feed.LatestPrice(ctx)
	if err != nil {
		return Quote{}, false, fmt.Errorf("feed %s: %w", asset, err)
	}
	stale := a.now().Sub(q.AsOf) > a.maxAge
	return q, stale, nil
}

// UsdValue converts an 18-decimal asset amount into 18-decimal units of
// account. The 8-decimal feed price is scaled up before the multiply and
// the product is divided last, so UsdValue and TokenAmountFromUsd round-trip
// within one unit of integer truncation.
func (a *Adapter) UsdValue(ctx context.Context, asset string, amount *big.Int) (*big.Int, error) {
	price, _, err := a.PriceOf(ctx, asset)
	if err != nil {
		return nil, err
	}
	scaled := new(big.Int).Mul(price, fpmath.FeedPrecisionGap)
	return fpmath.MulDiv(scaled, amount, fpmath.Precision), nil
}

// TokenAmountFromUsd converts an 18-decimal unit-of-account amount into an
// 18-decimal amount of asset at the current price.
func (a *Adapter) TokenAmountFromUsd(ctx context.Context, asset string, usdAmount *big.Int) (*big.Int, error) {
	price, _, err := a.PriceOf(ctx, asset)
	if err != nil {
		return nil, err
	}
	scaled := new(big.Int).Mul(price, fpmath.FeedPrecisionGap)
	return fpmath.MulDiv(usdAmount, fpmath.Precision, scaled), nil
}

package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	fpmath "StableVault/internal/math"
)

// ErrNoQuote is returned by a feed that has not yet observed a price.
var ErrNoQuote = errors.New("no price quote available")

// Quote is a single observation from a price feed: an 8-decimal scaled
// price in the unit of account, and the time it was produced upstream.
type Quote struct {
	Price *big.Int
	AsOf  time.Time
}

// PriceFeed is the external price source for one asset. Every valuation
// re-reads the feed; no quote is cached across engine operations.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (Quote, error)
}

// StreamFeed holds the most recent quote pushed by a price stream consumer.
// Writers and readers never block each other; the quote pointer is swapped
// atomically.
type StreamFeed struct {
	latest atomic.Pointer[Quote]
}

func NewStreamFeed() *StreamFeed {
	return &StreamFeed{}
}

// Update replaces the latest quote. Called by the price subscriber.
func (f *StreamFeed) Update(price *big.Int, asOf time.Time) {
	q := &Quote{Price: fpmath.Clone(price), AsOf: asOf}
	f.latest.Store(q)
}

func (f *StreamFeed) LatestPrice(ctx context.Context) (Quote, error) {
	q := f.latest.Load()
	if q == nil {
		return Quote{}, ErrNoQuote
	}
	return Quote{Price: fpmath.Clone(q.Price), AsOf: q.AsOf}, nil
}

// StaticFeed serves a fixed, settable quote. Used in tests and local runs.
type StaticFeed struct {
	inner StreamFeed
}

func NewStaticFeed(price *big.Int, asOf time.Time) *StaticFeed {
	f := &StaticFeed{}
	f.inner.Update(price, asOf)
	return f
}

// SetPrice replaces the served price, keeping the quote fresh as of now.
func (f *StaticFeed) SetPrice(price *big.Int, asOf time.Time) {
	f.inner.Update(price, asOf)
}

func (f *StaticFeed) LatestPrice(ctx context.Context) (Quote, error) {
	return f.inner.LatestPrice(ctx)
}

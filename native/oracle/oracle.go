package oracle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
)

var (
	// ErrStaleFeed indicates the freshest available observation is older than
	// the caller's staleness budget.
	ErrStaleFeed = errors.New("oracle: price feed is stale")
	// ErrUnknownFeed indicates no feed is registered under the requested
	// reference.
	ErrUnknownFeed = errors.New("oracle: unknown price feed")
	// ErrInvalidPrice indicates the upstream feed produced a zero or negative
	// value.
	ErrInvalidPrice = errors.New("oracle: invalid price value")
)

// Price captures a single observation from an upstream feed along with the
// timestamp reported by the publisher and the publisher identifier.
type Price struct {
	Value     decimal.Decimal
	Timestamp time.Time
	Source    string
}

// Feed resolves the latest observation for a feed reference. Implementations
// never perform staleness checks; the Adapter owns the freshness policy.
type Feed interface {
	Latest(ref string) (Price, error)
}

// Adapter wraps a Feed with freshness and validity checks. It is the only
// price entry point the lending engine consumes.
type Adapter struct {
	mu     sync.RWMutex
	feed   Feed
	maxAge time.Duration
	clk    clock.Clock
}

// NewAdapter constructs an adapter around the given feed. maxAge is the
// default staleness budget applied when the caller does not supply one.
func NewAdapter(feed Feed, maxAge time.Duration, clk clock.Clock) *Adapter {
	if clk == nil {
		clk = clock.New()
	}
	return &Adapter{feed: feed, maxAge: maxAge, clk: clk}
}

// SetMaxAge updates the default freshness window.
func (a *Adapter) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// Price returns the latest value for ref, rejecting observations older than
// maxAge. A non-positive maxAge falls back to the adapter default.
func (a *Adapter) Price(ref string, maxAge time.Duration) (decimal.Decimal, error) {
	if a == nil || a.feed == nil {
		return decimal.Zero, fmt.Errorf("oracle: adapter not configured")
	}
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return decimal.Zero, ErrUnknownFeed
	}
	a.mu.RLock()
	budget := a.maxAge
	a.mu.RUnlock()
	if maxAge > 0 {
		budget = maxAge
	}

	price, err := a.feed.Latest(trimmed)
	if err != nil {
		return decimal.Zero, err
	}
	if price.Value.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: feed %s returned %s", ErrInvalidPrice, trimmed, price.Value)
	}
	if budget > 0 && price.Timestamp.Before(a.clk.Now().Add(-budget)) {
		return decimal.Zero, fmt.Errorf("%w: feed %s last updated %s", ErrStaleFeed, trimmed, price.Timestamp.UTC().Format(time.RFC3339))
	}
	return price.Value, nil
}

// StaticFeed is an in-memory feed for tests and development deployments where
// prices are published by hand.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]Price
	clk    clock.Clock
}

// NewStaticFeed constructs an empty static feed.
func NewStaticFeed(clk clock.Clock) *StaticFeed {
	if clk == nil {
		clk = clock.New()
	}
	return &StaticFeed{prices: make(map[string]Price), clk: clk}
}

// Publish records a new observation for ref stamped with the feed clock.
func (f *StaticFeed) Publish(ref string, value decimal.Decimal) {
	f.PublishAt(ref, value, f.clk.Now())
}

// PublishAt records a new observation with an explicit timestamp.
func (f *StaticFeed) PublishAt(ref string, value decimal.Decimal, at time.Time) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return
	}
	f.mu.Lock()
	f.prices[trimmed] = Price{Value: value, Timestamp: at, Source: "static"}
	f.mu.Unlock()
}

// Latest returns the stored observation for ref.
func (f *StaticFeed) Latest(ref string) (Price, error) {
	f.mu.RLock()
	price, ok := f.prices[strings.TrimSpace(ref)]
	f.mu.RUnlock()
	if !ok {
		return Price{}, fmt.Errorf("%w: %s", ErrUnknownFeed, ref)
	}
	return price, nil
}

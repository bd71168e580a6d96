package oracle

import (
	"errors"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
)

func TestAdapterReturnsFreshPrice(t *testing.T) {
	clk := clock.NewMock()
	feed := NewStaticFeed(clk)
	adapter := NewAdapter(feed, time.Minute, clk)

	feed.Publish("WIF/USD", decimal.RequireFromString("2.8"))

	price, err := adapter.Price("WIF/USD", 0)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("2.8")) {
		t.Fatalf("unexpected price: %s", price)
	}
}

func TestAdapterRejectsStalePrice(t *testing.T) {
	clk := clock.NewMock()
	feed := NewStaticFeed(clk)
	adapter := NewAdapter(feed, time.Minute, clk)

	feed.Publish("AAPL/USD", decimal.NewFromInt(250))
	clk.Add(2 * time.Minute)

	if _, err := adapter.Price("AAPL/USD", 0); !errors.Is(err, ErrStaleFeed) {
		t.Fatalf("expected ErrStaleFeed, got %v", err)
	}

	// A wider caller-supplied budget accepts the same observation.
	price, err := adapter.Price("AAPL/USD", time.Hour)
	if err != nil {
		t.Fatalf("price with wide budget: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("unexpected price: %s", price)
	}
}

func TestAdapterRejectsUnknownAndInvalid(t *testing.T) {
	clk := clock.NewMock()
	feed := NewStaticFeed(clk)
	adapter := NewAdapter(feed, time.Minute, clk)

	if _, err := adapter.Price("MISSING/USD", 0); !errors.Is(err, ErrUnknownFeed) {
		t.Fatalf("expected ErrUnknownFeed, got %v", err)
	}

	feed.Publish("BAD/USD", decimal.Zero)
	if _, err := adapter.Price("BAD/USD", 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

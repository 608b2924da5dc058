// Package venue defines the interface the router uses to talk to a
// DeepBook-style order book venue, plus the plain data types that cross
// that boundary. A concrete implementation wraps the venue's RPC client;
// the router itself only ever depends on the Adapter interface, so it can
// be tested against a fake without any network access.
package venue

import (
	"context"

	"github.com/Numi2/sui-numi/internal/quant"
)

// OrderIntent is a client's request to place a limit order on a pool,
// before quantization or routing has touched it.
type OrderIntent struct {
	Pool          string
	Price         float64
	Quantity      float64
	IsBid         bool
	ClientOrderID string
	PayWithDeep   bool
	ExpirationMs  *uint64
}

// TradeParams are a pool's maker/taker fee schedule.
type TradeParams struct {
	MakerFee float64
	TakerFee float64
}

// Level2Book is an order book snapshot centered on the mid price, ticks
// deep on each side. Prices and quantities are parallel slices ordered by
// distance from mid (closest first), matching what a venue's "ticks from
// mid" RPC returns.
type Level2Book struct {
	BidPrices     []float64
	BidQuantities []float64
	AskPrices     []float64
	AskQuantities []float64
}

// Adapter is the external collaborator for a single order book venue. All
// methods are network calls in a real implementation and must respect
// ctx cancellation.
type Adapter interface {
	// PoolParams fetches the pool's quantization constraints.
	PoolParams(ctx context.Context, pool string) (quant.PoolParams, error)
	// MidPrice fetches the pool's current mid price.
	MidPrice(ctx context.Context, pool string) (float64, error)
	// Level2TicksFromMid fetches an order book snapshot ticks deep from mid.
	Level2TicksFromMid(ctx context.Context, pool string, ticks uint64) (Level2Book, error)
	// TradeParams fetches the pool's fee schedule.
	TradeParams(ctx context.Context, pool string) (TradeParams, error)
	// ReferenceGasPrice fetches the network's current reference gas price,
	// in MIST per gas unit.
	ReferenceGasPrice(ctx context.Context) (uint64, error)
	// BuildLimitOrderPTB compiles intent into a venue-native transaction,
	// returning its BCS-serialized bytes with gas already selected.
	BuildLimitOrderPTB(ctx context.Context, intent OrderIntent) ([]byte, error)
	// BuildLimitOrderPTBGasless compiles intent into a venue-native
	// transaction kind without gas, for sponsorship, along with the
	// intended sender address.
	BuildLimitOrderPTBGasless(ctx context.Context, intent OrderIntent) (txKind []byte, sender string, err error)
	// BuildMultiOrderPTB assembles multiple limit order legs into a
	// single transaction, for a multi-venue split route.
	BuildMultiOrderPTB(ctx context.Context, intents []OrderIntent) ([]byte, error)
	// BuildCancelReplacePTB assembles a cancel command for orderID
	// followed by a place command for replace into a single transaction.
	BuildCancelReplacePTB(ctx context.Context, orderID string, replace OrderIntent) ([]byte, error)
}

// Package route scores candidate execution paths for an order intent and
// selects the cheapest one, tracking adaptive latency estimates for
// owned-object and shared-object submission paths.
package route

import "github.com/Numi2/sui-numi/internal/venue"

// Kind discriminates the Route tagged union.
type Kind int

const (
	// KindDeepBookSingle places a single limit order on one pool.
	KindDeepBookSingle Kind = iota
	// KindMultiVenueSplit spreads one intent's quantity across venues.
	KindMultiVenueSplit
	// KindCancelReplace cancels a prior order and replaces it atomically.
	KindCancelReplace
	// KindFlashLoanArb is reserved for a future flash-loan-backed route.
	KindFlashLoanArb
)

// Route is a tagged union of the ways the router can execute an intent.
// Only the field matching Kind is populated.
type Route struct {
	Kind Kind

	// KindDeepBookSingle
	Single venue.OrderIntent

	// KindMultiVenueSplit
	SplitParts []venue.OrderIntent

	// KindCancelReplace. CancelDigest is the prior order's submission
	// digest, kept for records; OrderID is the venue-native order
	// identifier the caller resolved from it, since the Adapter interface
	// this core consumes has no digest-to-order-id lookup of its own
	// (documented open-question resolution: callers supply both).
	CancelDigest string
	OrderID      string
	Replace      venue.OrderIntent
}

// DeepBookSingle builds a single-leg DeepBook route.
func DeepBookSingle(intent venue.OrderIntent) Route {
	return Route{Kind: KindDeepBookSingle, Single: intent}
}

// CancelReplace builds a cancel-and-replace route. orderID is the
// venue-native identifier of the order being cancelled, resolved by the
// caller from cancelDigest.
func CancelReplace(cancelDigest, orderID string, replace venue.OrderIntent) Route {
	return Route{Kind: KindCancelReplace, CancelDigest: cancelDigest, OrderID: orderID, Replace: replace}
}

// Score breaks down a route's total price-of-execution into its
// components. Lower TotalCost is better.
type Score struct {
	L2Price        float64
	Slippage       float64
	GasCost        float64
	LatencyPenalty float64
	RiskFactor     float64
	TotalCost      float64
}

// NewScore computes TotalCost from its components.
func NewScore(l2Price, slippage, gasCost, latencyPenalty, riskFactor float64) Score {
	return Score{
		L2Price:        l2Price,
		Slippage:       slippage,
		GasCost:        gasCost,
		LatencyPenalty: latencyPenalty,
		RiskFactor:     riskFactor,
		TotalCost:      l2Price + slippage + gasCost + latencyPenalty + riskFactor,
	}
}

// latencyPenaltyForRoute charges shared-object routes for latency in
// excess of the fast (owned-object) baseline, at roughly 0.01% of notional
// per 100ms of excess. Owned-object routes pay no penalty.
func latencyPenaltyForRoute(usesSharedObjects bool, expectedLatencyMs, baseLatencyMs uint64, notional float64) float64 {
	if !usesSharedObjects {
		return 0.0
	}
	var excessMs uint64
	if expectedLatencyMs > baseLatencyMs {
		excessMs = expectedLatencyMs - baseLatencyMs
	}
	return (float64(excessMs) / 100.0) * 0.0001 * notional
}

// Plan is a fully scored candidate route with its execution metadata.
type Plan struct {
	Route             Route
	Score             Score
	ExpectedLatencyMs uint64
	UsesSharedObjects bool
	EstimatedGas      uint64
}

// defaultDeepBookGasUnits is the gas-unit estimate used for a DeepBook
// limit order before the transaction is actually built. The plan keeps
// this fixed value; compiling the transaction does not update it.
const defaultDeepBookGasUnits = 10_000_000

// NewDeepBookSinglePlan scores a single-leg DeepBook route. DeepBook
// orders always touch a shared BalanceManager, so they always require
// consensus and always pay the shared-object latency penalty.
func NewDeepBookSinglePlan(
	intent venue.OrderIntent,
	l2Price, slippage, gasCost float64,
	expectedLatencyMs, baseLatencyMs uint64,
	riskFactor float64,
) Plan {
	const usesSharedObjects = true
	penalty := latencyPenaltyForRoute(usesSharedObjects, expectedLatencyMs, baseLatencyMs, intent.Price*intent.Quantity)
	return Plan{
		Route:             DeepBookSingle(intent),
		Score:             NewScore(l2Price, slippage, gasCost, penalty, riskFactor),
		ExpectedLatencyMs: expectedLatencyMs,
		UsesSharedObjects: usesSharedObjects,
		EstimatedGas:      defaultDeepBookGasUnits,
	}
}

// Better reports whether p is a cheaper route than other.
func (p Plan) Better(other Plan) bool {
	return p.Score.TotalCost < other.Score.TotalCost
}

// Selection is the outcome of evaluating every candidate route for an
// intent: the winner plus the rejected alternatives, for observability.
type Selection struct {
	Plan         Plan
	Alternatives []Plan
}

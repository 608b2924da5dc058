package route

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
	"github.com/Numi2/sui-numi/internal/quant"
	"github.com/Numi2/sui-numi/internal/venue"
)

const (
	// maxLatencySamples bounds how many recent observations each path
	// keeps for its rolling average.
	maxLatencySamples = 100
	// minLatencySamples is how many observations must accumulate before
	// the EWMA estimate is updated from them.
	minLatencySamples = 10
	// latencyAlpha weights new observations against the current estimate.
	latencyAlpha = 0.1
	// level2Ticks is how many ticks from mid the selector asks a venue
	// for when estimating slippage.
	level2Ticks = 20
	// noLiquiditySlippageRate is charged when a venue returns an empty
	// book on the requested side.
	noLiquiditySlippageRate = 0.01
	// riskFactorRate approximates DeepBook's venue failure risk as a
	// fraction of notional, since it is a native, low-risk venue.
	riskFactorRate = 0.00001
)

// Selector evaluates candidate routes for an order intent and picks the
// one with the lowest total cost. It also tracks two independent adaptive
// latency estimates: one for owned-object (fast-path) submissions and one
// for shared-object (consensus) submissions, since DeepBook orders always
// take the shared-object path but other future venues may not.
type Selector struct {
	deepbook venue.Adapter

	baseLatencyMs         uint64 // atomic
	sharedObjectLatencyMs uint64 // atomic

	mu            sync.Mutex
	ownedSamples  *list.List
	sharedSamples *list.List
}

// NewSelector constructs a Selector. deepbook may be nil, in which case
// SelectRoute always returns aggrerrors.ErrNoRoutes.
func NewSelector(deepbook venue.Adapter, baseLatencyMs, sharedObjectLatencyMs uint64) *Selector {
	return &Selector{
		deepbook:              deepbook,
		baseLatencyMs:         baseLatencyMs,
		sharedObjectLatencyMs: sharedObjectLatencyMs,
		ownedSamples:          list.New(),
		sharedSamples:         list.New(),
	}
}

// LatencyEstimates returns the current (base, sharedObject) estimates in
// milliseconds.
func (s *Selector) LatencyEstimates() (baseMs, sharedMs uint64) {
	return atomic.LoadUint64(&s.baseLatencyMs), atomic.LoadUint64(&s.sharedObjectLatencyMs)
}

// UpdateLatencyEstimates overwrites both estimates directly, bypassing the
// sample-driven EWMA update; used to seed estimates from configuration or
// to restore a persisted value.
func (s *Selector) UpdateLatencyEstimates(baseMs, sharedMs uint64) {
	atomic.StoreUint64(&s.baseLatencyMs, baseMs)
	atomic.StoreUint64(&s.sharedObjectLatencyMs, sharedMs)
}

// RecordLatency folds an observed execution latency into the appropriate
// path's rolling window and, once enough samples have accumulated,
// updates that path's EWMA estimate from their average.
func (s *Selector) RecordLatency(latencyMs float64, usesSharedObjects bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.ownedSamples
	if usesSharedObjects {
		samples = s.sharedSamples
	}
	samples.PushBack(latencyMs)
	for samples.Len() > maxLatencySamples {
		samples.Remove(samples.Front())
	}
	if samples.Len() < minLatencySamples {
		return
	}

	var sum float64
	for e := samples.Front(); e != nil; e = e.Next() {
		sum += e.Value.(float64)
	}
	recentAvg := sum / float64(samples.Len())

	if usesSharedObjects {
		current := float64(atomic.LoadUint64(&s.sharedObjectLatencyMs))
		updated := latencyAlpha*recentAvg + (1-latencyAlpha)*current
		atomic.StoreUint64(&s.sharedObjectLatencyMs, uint64(updated))
	} else {
		current := float64(atomic.LoadUint64(&s.baseLatencyMs))
		updated := latencyAlpha*recentAvg + (1-latencyAlpha)*current
		atomic.StoreUint64(&s.baseLatencyMs, uint64(updated))
	}
}

// LatencyStats summarizes the current estimates and rolling samples, for
// the /api/v1/latency surface.
type LatencyStats struct {
	BaseLatencyMs   uint64   `json:"base_latency_ms"`
	SharedLatencyMs uint64   `json:"shared_latency_ms"`
	OwnedSamples    int      `json:"owned_samples"`
	SharedSamples   int      `json:"shared_samples"`
	OwnedAvg        *float64 `json:"owned_avg,omitempty"`
	SharedAvg       *float64 `json:"shared_avg,omitempty"`
}

// Stats returns a snapshot of the selector's latency tracking state.
func (s *Selector) Stats() LatencyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := LatencyStats{
		BaseLatencyMs:   atomic.LoadUint64(&s.baseLatencyMs),
		SharedLatencyMs: atomic.LoadUint64(&s.sharedObjectLatencyMs),
		OwnedSamples:    s.ownedSamples.Len(),
		SharedSamples:   s.sharedSamples.Len(),
	}
	if avg, ok := averageOf(s.ownedSamples); ok {
		stats.OwnedAvg = &avg
	}
	if avg, ok := averageOf(s.sharedSamples); ok {
		stats.SharedAvg = &avg
	}
	return stats
}

func averageOf(l *list.List) (float64, bool) {
	if l.Len() == 0 {
		return 0, false
	}
	var sum float64
	for e := l.Front(); e != nil; e = e.Next() {
		sum += e.Value.(float64)
	}
	return sum / float64(l.Len()), true
}

// SelectRoute validates and quantizes intent, then evaluates every venue
// capable of serving it and returns the cheapest viable one, along with
// the rejected alternatives.
func (s *Selector) SelectRoute(ctx context.Context, intent venue.OrderIntent) (Selection, error) {
	var alternatives []Plan

	if s.deepbook != nil {
		qPrice, qSize, _, err := ValidateLimitOrder(ctx, s.deepbook, intent)
		if err != nil {
			return Selection{}, err
		}
		intent.Price = qPrice
		intent.Quantity = qSize

		plan, err := s.evaluateDeepBookRoute(ctx, intent)
		if err == nil {
			alternatives = append(alternatives, plan)
		}
	}

	if len(alternatives) == 0 {
		return Selection{}, fmt.Errorf("%w for pool %s", aggrerrors.ErrNoRoutes, intent.Pool)
	}

	best := 0
	for i := 1; i < len(alternatives); i++ {
		if alternatives[i].Better(alternatives[best]) {
			best = i
		}
	}
	plan := alternatives[best]
	alternatives = append(alternatives[:best], alternatives[best+1:]...)

	return Selection{Plan: plan, Alternatives: alternatives}, nil
}

func (s *Selector) evaluateDeepBookRoute(ctx context.Context, intent venue.OrderIntent) (Plan, error) {
	poolParams, err := s.deepbook.PoolParams(ctx, intent.Pool)
	if err != nil {
		return Plan{}, fmt.Errorf("fetch pool parameters: %w", err)
	}

	midPrice, err := s.deepbook.MidPrice(ctx, intent.Pool)
	if err != nil {
		return Plan{}, fmt.Errorf("fetch mid price: %w", err)
	}

	var l2Price float64
	if intent.IsBid {
		l2Price = maxFloat(intent.Price, midPrice)
	} else {
		l2Price = minFloat(intent.Price, midPrice)
	}

	book, err := s.deepbook.Level2TicksFromMid(ctx, intent.Pool, level2Ticks)
	if err != nil {
		return Plan{}, fmt.Errorf("fetch level2 order book: %w", err)
	}

	slippage, err := calculateSlippage(intent.Price, intent.Quantity, intent.IsBid, book, poolParams)
	if err != nil {
		return Plan{}, err
	}

	tradeParams, err := s.deepbook.TradeParams(ctx, intent.Pool)
	if err != nil {
		return Plan{}, fmt.Errorf("fetch trade parameters: %w", err)
	}

	gasPricePerUnit, err := s.deepbook.ReferenceGasPrice(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("fetch reference gas price: %w", err)
	}

	gasCostSui := (float64(defaultDeepBookGasUnits) * float64(gasPricePerUnit)) / 1e9
	gasCost := gasCostSui * l2Price

	var feeRate float64
	if intent.IsBid {
		if intent.Price >= midPrice {
			feeRate = tradeParams.TakerFee
		} else {
			feeRate = tradeParams.MakerFee
		}
	} else {
		if intent.Price <= midPrice {
			feeRate = tradeParams.TakerFee
		} else {
			feeRate = tradeParams.MakerFee
		}
	}
	feeCost := intent.Quantity * intent.Price * feeRate

	expectedLatencyMs := atomic.LoadUint64(&s.sharedObjectLatencyMs)
	riskFactor := intent.Price * intent.Quantity * riskFactorRate

	return NewDeepBookSinglePlan(
		intent,
		l2Price,
		slippage+feeCost,
		gasCost,
		expectedLatencyMs,
		atomic.LoadUint64(&s.baseLatencyMs),
		riskFactor,
	), nil
}

// calculateSlippage walks the book on the side that opposes the order
// direction (bids walk asks, asks walk bids), filling from best price
// outward, and charges slippage for the portion that would fill worse
// than the requested price. If the book cannot fully fill the order,
// the remainder is priced at one tick beyond the worst known level.
func calculateSlippage(price, quantity float64, isBid bool, book venue.Level2Book, poolParams quant.PoolParams) (float64, error) {
	prices, quantities := book.BidPrices, book.BidQuantities
	if isBid {
		prices, quantities = book.AskPrices, book.AskQuantities
	}

	if len(prices) == 0 || len(quantities) == 0 {
		return price * quantity * noLiquiditySlippageRate, nil
	}

	remaining := quantity
	var totalCost float64
	for i := 0; i < len(prices) && i < len(quantities); i++ {
		if remaining <= 0 {
			break
		}
		fillQty := remaining
		if quantities[i] < fillQty {
			fillQty = quantities[i]
		}
		totalCost += fillQty * prices[i]
		remaining -= fillQty
	}

	if remaining > 0 {
		lastPrice := prices[len(prices)-1]
		var worstPrice float64
		if isBid {
			worstPrice = lastPrice + poolParams.TickSize
		} else {
			worstPrice = lastPrice - poolParams.TickSize
		}
		totalCost += remaining * worstPrice
	}

	avgFillPrice := totalCost / quantity
	if isBid {
		return maxFloat(avgFillPrice-price, 0) * quantity, nil
	}
	return maxFloat(price-avgFillPrice, 0) * quantity, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

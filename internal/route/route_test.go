package route

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Numi2/sui-numi/internal/quant"
	"github.com/Numi2/sui-numi/internal/venue"
)

type fakeAdapter struct {
	poolParams  quant.PoolParams
	midPrice    float64
	book        venue.Level2Book
	tradeParams venue.TradeParams
	gasPrice    uint64

	poolParamsErr error
}

func (f *fakeAdapter) PoolParams(ctx context.Context, pool string) (quant.PoolParams, error) {
	if f.poolParamsErr != nil {
		return quant.PoolParams{}, f.poolParamsErr
	}
	return f.poolParams, nil
}

func (f *fakeAdapter) MidPrice(ctx context.Context, pool string) (float64, error) {
	return f.midPrice, nil
}

func (f *fakeAdapter) Level2TicksFromMid(ctx context.Context, pool string, ticks uint64) (venue.Level2Book, error) {
	return f.book, nil
}

func (f *fakeAdapter) TradeParams(ctx context.Context, pool string) (venue.TradeParams, error) {
	return f.tradeParams, nil
}

func (f *fakeAdapter) ReferenceGasPrice(ctx context.Context) (uint64, error) {
	return f.gasPrice, nil
}

func (f *fakeAdapter) BuildLimitOrderPTB(ctx context.Context, intent venue.OrderIntent) ([]byte, error) {
	return []byte("tx-bytes"), nil
}

func (f *fakeAdapter) BuildLimitOrderPTBGasless(ctx context.Context, intent venue.OrderIntent) ([]byte, string, error) {
	return []byte("tx-kind"), "0xsender", nil
}

func (f *fakeAdapter) BuildMultiOrderPTB(ctx context.Context, intents []venue.OrderIntent) ([]byte, error) {
	return []byte("multi-tx-bytes"), nil
}

func (f *fakeAdapter) BuildCancelReplacePTB(ctx context.Context, orderID string, replace venue.OrderIntent) ([]byte, error) {
	return []byte("cancel-replace-tx-bytes"), nil
}

func newTestAdapter() *fakeAdapter {
	return &fakeAdapter{
		poolParams: quant.PoolParams{TickSize: 0.001, LotSize: 0.1, MinSize: 0.1},
		midPrice:   1.0,
		book: venue.Level2Book{
			BidPrices:     []float64{0.999, 0.998, 0.997},
			BidQuantities: []float64{5, 5, 5},
			AskPrices:     []float64{1.001, 1.002, 1.003},
			AskQuantities: []float64{5, 5, 5},
		},
		tradeParams: venue.TradeParams{MakerFee: 0.0005, TakerFee: 0.001},
		gasPrice:    1000,
	}
}

func TestSelectRouteReturnsErrNoRoutesWithoutAdapter(t *testing.T) {
	s := NewSelector(nil, 400, 2000)
	_, err := s.SelectRoute(context.Background(), venue.OrderIntent{Pool: "POOL", Price: 1, Quantity: 1, IsBid: true})
	assert.Error(t, err)
}

func TestSelectRouteScoresDeepBookSingle(t *testing.T) {
	adapter := newTestAdapter()
	s := NewSelector(adapter, 400, 2000)

	sel, err := s.SelectRoute(context.Background(), venue.OrderIntent{
		Pool: "POOL", Price: 1.0, Quantity: 1.0, IsBid: true,
	})
	require.NoError(t, err)
	assert.Equal(t, KindDeepBookSingle, sel.Plan.Route.Kind)
	assert.True(t, sel.Plan.UsesSharedObjects)
	assert.Greater(t, sel.Plan.Score.TotalCost, 0.0)
	assert.Empty(t, sel.Alternatives)
}

func TestSelectRouteFillsFromBookDepthForSlippage(t *testing.T) {
	adapter := newTestAdapter()
	s := NewSelector(adapter, 400, 2000)

	// Requested price is well above the achievable average ask fill
	// price, so the walk-the-book average falls short of it.
	sel, err := s.SelectRoute(context.Background(), venue.OrderIntent{
		Pool: "POOL", Price: 1.01, Quantity: 8.0, IsBid: false,
	})
	require.NoError(t, err)
	assert.Greater(t, sel.Plan.Score.Slippage, 0.0)
}

func TestCalculateSlippageBidWalksAsksPerScenarioOne(t *testing.T) {
	book := venue.Level2Book{
		AskPrices:     []float64{1.001, 1.002},
		AskQuantities: []float64{5, 6},
	}
	poolParams := quant.PoolParams{TickSize: 0.001}

	slippage, err := calculateSlippage(1.000, 10, true, book, poolParams)
	require.NoError(t, err)
	assert.InDelta(t, 0.015, slippage, 1e-9)
}

func TestCalculateSlippageAskWalksBids(t *testing.T) {
	book := venue.Level2Book{
		BidPrices:     []float64{0.999, 0.998},
		BidQuantities: []float64{5, 6},
	}
	poolParams := quant.PoolParams{TickSize: 0.001}

	slippage, err := calculateSlippage(1.000, 10, false, book, poolParams)
	require.NoError(t, err)
	assert.InDelta(t, 0.015, slippage, 1e-9)
}

func TestRecordLatencyBlendsAfterMinSamples(t *testing.T) {
	s := NewSelector(nil, 400, 2000)
	for i := 0; i < minLatencySamples; i++ {
		s.RecordLatency(100, false)
	}
	base, shared := s.LatencyEstimates()
	assert.Less(t, base, uint64(400))
	assert.Equal(t, uint64(2000), shared)
}

func TestRecordLatencyTracksOwnedAndSharedIndependently(t *testing.T) {
	s := NewSelector(nil, 400, 2000)
	for i := 0; i < minLatencySamples; i++ {
		s.RecordLatency(50, false)
		s.RecordLatency(3000, true)
	}
	stats := s.Stats()
	assert.Equal(t, minLatencySamples, stats.OwnedSamples)
	assert.Equal(t, minLatencySamples, stats.SharedSamples)
	require.NotNil(t, stats.OwnedAvg)
	require.NotNil(t, stats.SharedAvg)
	assert.InDelta(t, 50.0, *stats.OwnedAvg, 1e-9)
	assert.InDelta(t, 3000.0, *stats.SharedAvg, 1e-9)
}

func TestValidateLimitOrderQuantizesAndWarns(t *testing.T) {
	adapter := newTestAdapter()
	price, size, warnings, err := ValidateLimitOrder(context.Background(), adapter, venue.OrderIntent{
		Pool: "POOL", Price: 1.0009, Quantity: 1.05,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, price, 1e-9)
	assert.InDelta(t, 1.0, size, 1e-9)
	assert.NotEmpty(t, warnings.Messages)
}

func TestValidateLimitOrderRejectsBelowMinSize(t *testing.T) {
	adapter := newTestAdapter()
	_, _, _, err := ValidateLimitOrder(context.Background(), adapter, venue.OrderIntent{
		Pool: "POOL", Price: 1.0, Quantity: 0.05,
	})
	assert.Error(t, err)
}

func TestValidateLimitOrderPropagatesPoolParamsError(t *testing.T) {
	adapter := newTestAdapter()
	adapter.poolParamsErr = assert.AnError
	_, _, _, err := ValidateLimitOrder(context.Background(), adapter, venue.OrderIntent{
		Pool: "POOL", Price: 1.0, Quantity: 1.0,
	})
	assert.Error(t, err)
}

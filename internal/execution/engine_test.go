package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
	"github.com/Numi2/sui-numi/internal/quant"
	"github.com/Numi2/sui-numi/internal/ranker"
	"github.com/Numi2/sui-numi/internal/route"
	"github.com/Numi2/sui-numi/internal/sponsorship"
	"github.com/Numi2/sui-numi/internal/transport"
	"github.com/Numi2/sui-numi/internal/venue"
)

func testSeed() string {
	// 64 hex chars = 32 bytes, a valid Ed25519 seed size regardless of value.
	return "0101010101010101010101010101010101010101010101010101010101010a01"[:64]
}

type fakeVenueAdapter struct {
	buildErr error
}

func (f *fakeVenueAdapter) PoolParams(ctx context.Context, pool string) (quant.PoolParams, error) {
	return quant.PoolParams{TickSize: 0.001, LotSize: 0.1, MinSize: 0.1}, nil
}
func (f *fakeVenueAdapter) MidPrice(ctx context.Context, pool string) (float64, error) { return 1.0, nil }
func (f *fakeVenueAdapter) Level2TicksFromMid(ctx context.Context, pool string, ticks uint64) (venue.Level2Book, error) {
	return venue.Level2Book{}, nil
}
func (f *fakeVenueAdapter) TradeParams(ctx context.Context, pool string) (venue.TradeParams, error) {
	return venue.TradeParams{}, nil
}
func (f *fakeVenueAdapter) ReferenceGasPrice(ctx context.Context) (uint64, error) { return 1000, nil }
func (f *fakeVenueAdapter) BuildLimitOrderPTB(ctx context.Context, intent venue.OrderIntent) ([]byte, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return []byte("tx-bytes-" + intent.Pool), nil
}
func (f *fakeVenueAdapter) BuildLimitOrderPTBGasless(ctx context.Context, intent venue.OrderIntent) ([]byte, string, error) {
	return []byte("tx-kind-" + intent.Pool), "0xsender", nil
}
func (f *fakeVenueAdapter) BuildMultiOrderPTB(ctx context.Context, intents []venue.OrderIntent) ([]byte, error) {
	return []byte("multi-tx-bytes"), nil
}
func (f *fakeVenueAdapter) BuildCancelReplacePTB(ctx context.Context, orderID string, replace venue.OrderIntent) ([]byte, error) {
	return []byte("cancel-replace-tx-bytes"), nil
}

type fakeSubmitter struct {
	failuresBeforeSuccess int
	permanentErr          error
	calls                 int
	digest                string
}

func (f *fakeSubmitter) SubmitTransaction(ctx context.Context, txBCS []byte, signatures [][]byte) (transport.Executed, error) {
	f.calls++
	if f.permanentErr != nil {
		return transport.Executed{}, f.permanentErr
	}
	if f.calls <= f.failuresBeforeSuccess {
		return transport.Executed{}, errors.New("transient upstream failure")
	}
	return transport.Executed{Digest: f.digest, HasCheckpoint: true, CheckpointSequence: 7}, nil
}

func samplePlan() route.Plan {
	return route.NewDeepBookSinglePlan(
		venue.OrderIntent{Pool: "POOL", Price: 1.0, Quantity: 1.0, IsBid: true},
		1.0, 0.0, 0.001, 400, 400, 0.0,
	)
}

func TestExecuteRunsPipelineAndUpdatesStats(t *testing.T) {
	adapter := &fakeVenueAdapter{}
	submitter := &fakeSubmitter{digest: "abc123"}
	rk := ranker.New(0, 0, 0)
	rk.Register("jsonrpc")
	sel := route.NewSelector(adapter, 400, 2000)

	e := New(adapter, nil, submitter, false, sel, rk, testSeed(), "0xuser", nil)

	result, err := e.Execute(context.Background(), samplePlan())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Digest)
	require.NotNil(t, result.CheckpointTimeMs)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.TotalExecutions)
	assert.Equal(t, uint64(1), stats.SuccessfulExecutions)
	assert.Equal(t, uint64(0), stats.FailedExecutions)
	require.NotNil(t, stats.AvgEffectsTimeMs)
}

func TestExecuteRejectsDuplicateDigest(t *testing.T) {
	adapter := &fakeVenueAdapter{}
	submitter := &fakeSubmitter{digest: "dup-digest"}
	e := New(adapter, nil, submitter, false, nil, nil, testSeed(), "0xuser", nil)

	plan := samplePlan()
	_, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, aggrerrors.ErrDuplicateSubmission)
}

func TestExecuteRejectsUnsupportedFlashLoanRoute(t *testing.T) {
	adapter := &fakeVenueAdapter{}
	submitter := &fakeSubmitter{digest: "n/a"}
	e := New(adapter, nil, submitter, false, nil, nil, testSeed(), "0xuser", nil)

	plan := route.Plan{Route: route.Route{Kind: route.KindFlashLoanArb}}
	_, err := e.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, aggrerrors.ErrUnsupportedRoute)
}

func TestExecuteRejectsCancelReplaceWithoutOrderID(t *testing.T) {
	adapter := &fakeVenueAdapter{}
	submitter := &fakeSubmitter{digest: "n/a"}
	e := New(adapter, nil, submitter, false, nil, nil, testSeed(), "0xuser", nil)

	plan := route.Plan{Route: route.CancelReplace("prior-digest", "", venue.OrderIntent{Pool: "POOL"})}
	_, err := e.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, aggrerrors.ErrBuildTx)
}

func TestExecuteSponsoredFallsBackToSelfPaidWhenBudgetExceeded(t *testing.T) {
	adapter := &fakeVenueAdapter{}
	submitter := &fakeSubmitter{digest: "fallback-digest"}
	e := New(adapter, nil, submitter, false, nil, nil, testSeed(), "0xuser", nil)

	mgr := sponsorship.NewManager(testSeed(), "0xsponsor", 1000, sponsorship.DefaultAbuseConfig())
	mgr.SetUserBudget("0xuser", 10, 10, 0) // tiny budget, any non-trivial gas estimate exceeds it
	e.WithSponsorship(mgr)

	plan := samplePlan()
	plan.EstimatedGas = 50_000_000 // far above the 10-unit user budget

	result, err := e.ExecuteSponsored(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "fallback-digest", result.Executed.Digest)
}

func TestExecuteSponsoredSucceedsWithSufficientBudget(t *testing.T) {
	adapter := &fakeVenueAdapter{}
	submitter := &fakeSubmitter{digest: "sponsored-digest"}
	e := New(adapter, nil, submitter, false, nil, nil, testSeed(), "0xuser", nil)

	mgr := sponsorship.NewManager(testSeed(), "0xsponsor", 1000, sponsorship.DefaultAbuseConfig())
	mgr.UpdateGasCoins([]string{"0xgascoin1"})
	mgr.SetUserBudget("0xuser", 1_000_000_000, 1_000_000_000, 0)
	e.WithSponsorship(mgr)

	result, err := e.ExecuteSponsored(context.Background(), samplePlan())
	require.NoError(t, err)
	assert.Equal(t, "sponsored-digest", result.Executed.Digest)
}

func TestSubmitRetriesTransientFailuresThenSucceeds(t *testing.T) {
	adapter := &fakeVenueAdapter{}
	submitter := &fakeSubmitter{digest: "retried-digest", failuresBeforeSuccess: 2}
	e := New(adapter, nil, submitter, false, nil, nil, testSeed(), "0xuser", nil)

	result, err := e.Execute(context.Background(), samplePlan())
	require.NoError(t, err)
	assert.Equal(t, "retried-digest", result.Executed.Digest)
	assert.Equal(t, 3, submitter.calls)
}

func TestSubmitDoesNotRetryPermanentlyClassifiedErrors(t *testing.T) {
	adapter := &fakeVenueAdapter{}
	permanentErr := errors.New("rejected: insufficient gas")
	submitter := &fakeSubmitter{permanentErr: permanentErr}
	classify := func(err error) aggrerrors.RetryClass { return aggrerrors.Permanent }
	e := New(adapter, nil, submitter, false, nil, nil, testSeed(), "0xuser", classify)

	_, err := e.Execute(context.Background(), samplePlan())
	require.Error(t, err)
	assert.ErrorIs(t, err, aggrerrors.ErrBackoffExhausted)
	assert.Equal(t, 1, submitter.calls)
}

func TestExecuteUsesGRPCClientWhenConfigured(t *testing.T) {
	adapter := &fakeVenueAdapter{}
	grpcSubmitter := &fakeSubmitter{digest: "grpc-digest"}
	jsonrpcSubmitter := &fakeSubmitter{digest: "jsonrpc-digest"}
	e := New(adapter, grpcSubmitter, jsonrpcSubmitter, true, nil, nil, testSeed(), "0xuser", nil)

	result, err := e.Execute(context.Background(), samplePlan())
	require.NoError(t, err)
	assert.Equal(t, "grpc-digest", result.Executed.Digest)
	assert.Equal(t, 0, jsonrpcSubmitter.calls)
}

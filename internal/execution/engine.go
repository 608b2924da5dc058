// Package execution compiles a scored route plan into a signed
// transaction, submits it with idempotent retries, and tracks execution
// statistics and adaptive latency feedback.
package execution

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
	"github.com/Numi2/sui-numi/internal/ranker"
	"github.com/Numi2/sui-numi/internal/route"
	"github.com/Numi2/sui-numi/internal/signing"
	"github.com/Numi2/sui-numi/internal/sponsorship"
	"github.com/Numi2/sui-numi/internal/transport"
	"github.com/Numi2/sui-numi/internal/venue"
)

const (
	submitInitialInterval = 100 * time.Millisecond
	submitMaxInterval     = 5 * time.Second
	submitMaxElapsedTime  = 30 * time.Second
	submitMultiplier      = 2.0

	// minSponsoredGasBudget is the floor applied to a plan's estimated
	// gas when used as the sponsored transaction's gas budget.
	minSponsoredGasBudget = 10_000_000
)

// Result is one execution's outcome and timing.
type Result struct {
	Digest           string
	Executed         transport.Executed
	EffectsTimeMs    float64
	CheckpointTimeMs *float64
}

// Stats is a snapshot of cumulative execution counters.
type Stats struct {
	TotalExecutions      uint64   `json:"total_executions"`
	SuccessfulExecutions uint64   `json:"successful_executions"`
	FailedExecutions     uint64   `json:"failed_executions"`
	AvgEffectsTimeMs     *float64 `json:"avg_effects_time_ms,omitempty"`
	AvgCheckpointTimeMs  *float64 `json:"avg_checkpoint_time_ms,omitempty"`
	SuccessRate          float64  `json:"success_rate"`
}

// Engine compiles route plans into transactions, signs, submits with
// retry, and records statistics and latency feedback.
type Engine struct {
	deepbook venue.Adapter

	grpcClient     transport.Submitter
	jsonrpcClient  transport.Submitter
	useGRPCExecute bool

	selector *route.Selector
	ranker   *ranker.Ranker

	secretKeyHex string
	userAddress  string

	sponsorship *sponsorship.Manager
	classify    aggrerrors.Classifier

	mu          sync.RWMutex
	seenDigests map[string]struct{}

	totalExecutions             uint64
	successfulExecutions        uint64
	failedExecutions            uint64
	totalEffectsTimeMsMicros    uint64 // sum of effects-time-ms * 1000, for precision without floats in an atomic
	totalCheckpointTimeMsMicros uint64
	checkpointCount             uint64
}

// New constructs an Engine. classify may be nil, in which case every
// transport error is treated as transient (aggrerrors.DefaultClassifier).
func New(
	deepbook venue.Adapter,
	grpcClient, jsonrpcClient transport.Submitter,
	useGRPCExecute bool,
	selector *route.Selector,
	rk *ranker.Ranker,
	secretKeyHex, userAddress string,
	classify aggrerrors.Classifier,
) *Engine {
	if classify == nil {
		classify = aggrerrors.DefaultClassifier
	}
	return &Engine{
		deepbook:       deepbook,
		grpcClient:     grpcClient,
		jsonrpcClient:  jsonrpcClient,
		useGRPCExecute: useGRPCExecute,
		selector:       selector,
		ranker:         rk,
		secretKeyHex:   secretKeyHex,
		userAddress:    userAddress,
		classify:       classify,
		seenDigests:    make(map[string]struct{}),
	}
}

// WithSponsorship attaches a sponsorship manager, enabling sponsored
// execution via ExecuteSponsored.
func (e *Engine) WithSponsorship(mgr *sponsorship.Manager) *Engine {
	e.sponsorship = mgr
	return e
}

// Execute runs the non-sponsored pipeline for plan.
func (e *Engine) Execute(ctx context.Context, plan route.Plan) (Result, error) {
	return e.execute(ctx, plan, false)
}

// ExecuteSponsored runs the pipeline for plan, attempting sponsorship
// first and falling back to a self-paid submission if sponsorship is
// unavailable or inadmissible.
func (e *Engine) ExecuteSponsored(ctx context.Context, plan route.Plan) (Result, error) {
	return e.execute(ctx, plan, true)
}

func (e *Engine) execute(ctx context.Context, plan route.Plan, useSponsorship bool) (Result, error) {
	atomic.AddUint64(&e.totalExecutions, 1)

	if plan.Route.Kind == route.KindDeepBookSingle && e.deepbook != nil {
		qPrice, qSize, _, qErr := route.ValidateLimitOrder(ctx, e.deepbook, plan.Route.Single)
		if qErr != nil {
			atomic.AddUint64(&e.failedExecutions, 1)
			return Result{}, qErr
		}
		plan.Route.Single.Price, plan.Route.Single.Quantity = qPrice, qSize
	}

	var (
		txBCS       []byte
		isSponsored bool
		err         error
	)
	if useSponsorship && e.sponsorship != nil {
		txBCS, isSponsored, err = e.compileRouteSponsored(ctx, plan)
	} else {
		txBCS, err = e.compileRoute(ctx, plan)
	}
	if err != nil {
		atomic.AddUint64(&e.failedExecutions, 1)
		return Result{}, err
	}

	var signatures [][]byte
	if isSponsored {
		signatures, err = e.signSponsored(txBCS)
	} else {
		var signed signing.Signed
		signed, err = signing.SignTxBCSEd25519(txBCS, e.secretKeyHex)
		if err == nil {
			signatures = [][]byte{signed.Serialized}
		}
	}
	if err != nil {
		atomic.AddUint64(&e.failedExecutions, 1)
		return Result{}, err
	}

	digest := computeDigest(txBCS)

	e.mu.RLock()
	_, seen := e.seenDigests[digest]
	e.mu.RUnlock()
	if seen {
		atomic.AddUint64(&e.failedExecutions, 1)
		return Result{}, fmt.Errorf("%w: %s", aggrerrors.ErrDuplicateSubmission, digest)
	}

	submitStart := time.Now()
	executed, err := e.submitWithRetry(ctx, txBCS, signatures)
	if err != nil {
		atomic.AddUint64(&e.failedExecutions, 1)
		return Result{}, err
	}
	effectsTimeMs := float64(time.Since(submitStart)) / float64(time.Millisecond)

	e.mu.Lock()
	e.seenDigests[digest] = struct{}{}
	e.mu.Unlock()

	if e.ranker != nil {
		if best, ok := e.ranker.SelectBest(); ok {
			e.ranker.RecordEffectsTime(best, effectsTimeMs)
		}
	}
	if e.selector != nil {
		e.selector.RecordLatency(effectsTimeMs, plan.UsesSharedObjects)
	}

	var checkpointTimeMs *float64
	if executed.HasCheckpoint {
		// Checkpoint inclusion time is approximated as equal to effects
		// time; no separate submission-to-checkpoint wall clock is
		// tracked.
		v := effectsTimeMs
		checkpointTimeMs = &v
	}

	atomic.AddUint64(&e.successfulExecutions, 1)
	atomic.AddUint64(&e.totalEffectsTimeMsMicros, uint64(effectsTimeMs*1000.0))
	if checkpointTimeMs != nil {
		atomic.AddUint64(&e.totalCheckpointTimeMsMicros, uint64(*checkpointTimeMs*1000.0))
		atomic.AddUint64(&e.checkpointCount, 1)
	}

	if executed.Digest == "" {
		executed.Digest = digest
	}
	return Result{
		Digest:           digest,
		Executed:         executed,
		EffectsTimeMs:    effectsTimeMs,
		CheckpointTimeMs: checkpointTimeMs,
	}, nil
}

func (e *Engine) compileRoute(ctx context.Context, plan route.Plan) ([]byte, error) {
	if e.deepbook == nil {
		return nil, fmt.Errorf("%w: DeepBook adapter not available", aggrerrors.ErrBuildTx)
	}
	switch plan.Route.Kind {
	case route.KindDeepBookSingle:
		return e.deepbook.BuildLimitOrderPTB(ctx, plan.Route.Single)
	case route.KindMultiVenueSplit:
		if len(plan.Route.SplitParts) == 0 {
			return nil, fmt.Errorf("%w: multi-venue route must have at least one leg", aggrerrors.ErrBuildTx)
		}
		return e.deepbook.BuildMultiOrderPTB(ctx, plan.Route.SplitParts)
	case route.KindCancelReplace:
		if plan.Route.OrderID == "" {
			return nil, fmt.Errorf("%w: cancel-replace requires a resolved order id", aggrerrors.ErrBuildTx)
		}
		return e.deepbook.BuildCancelReplacePTB(ctx, plan.Route.OrderID, plan.Route.Replace)
	case route.KindFlashLoanArb:
		return nil, fmt.Errorf("%w: flash-loan routes require flash loan contract integration", aggrerrors.ErrUnsupportedRoute)
	default:
		return nil, fmt.Errorf("%w: unrecognized route kind", aggrerrors.ErrUnsupportedRoute)
	}
}

func (e *Engine) compileRouteSponsored(ctx context.Context, plan route.Plan) (txBCS []byte, sponsored bool, err error) {
	if e.sponsorship == nil {
		return nil, false, fmt.Errorf("sponsorship not available")
	}
	if plan.Route.Kind != route.KindDeepBookSingle {
		bcs, err := e.compileRoute(ctx, plan)
		return bcs, false, err
	}

	routeClass := routeClassName(plan.Route.Kind)
	req := sponsorship.Request{
		UserAddress:  e.userAddress,
		RouteClass:   routeClass,
		EstimatedGas: plan.EstimatedGas,
	}
	if err := e.sponsorship.CanSponsor(req); err != nil {
		bcs, compileErr := e.compileRoute(ctx, plan)
		return bcs, false, compileErr
	}

	gasBudget := plan.EstimatedGas
	if gasBudget < minSponsoredGasBudget {
		gasBudget = minSponsoredGasBudget
	}

	txKind, sender, err := e.deepbook.BuildLimitOrderPTBGasless(ctx, plan.Route.Single)
	if err != nil {
		return nil, false, fmt.Errorf("build gasless DeepBook limit order PTB: %w", err)
	}

	sponsoredTxBCS, err := e.sponsorship.BuildSponsoredTransaction(txKind, sender, gasBudget)
	if err != nil {
		return nil, false, fmt.Errorf("build sponsored transaction: %w", err)
	}

	e.sponsorship.RecordSpending(req)
	return sponsoredTxBCS, true, nil
}

func (e *Engine) signSponsored(txBCS []byte) ([][]byte, error) {
	userSigned, err := signing.SignTxBCSEd25519(txBCS, e.secretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("user signing failed: %w", err)
	}
	sponsorSigned, err := e.sponsorship.SignSponsoredTransaction(txBCS)
	if err != nil {
		return nil, fmt.Errorf("sponsor signing failed: %w", err)
	}
	return [][]byte{userSigned.Serialized, sponsorSigned.Serialized}, nil
}

func (e *Engine) submitWithRetry(ctx context.Context, txBCS []byte, signatures [][]byte) (transport.Executed, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = submitInitialInterval
	bo.MaxInterval = submitMaxInterval
	bo.MaxElapsedTime = submitMaxElapsedTime
	bo.Multiplier = submitMultiplier

	var executed transport.Executed
	operation := func() error {
		submitter := e.jsonrpcClient
		if e.useGRPCExecute {
			submitter = e.grpcClient
		}
		if submitter == nil {
			return backoff.Permanent(fmt.Errorf("%w: no submission client configured", aggrerrors.ErrTransport))
		}
		result, err := submitter.SubmitTransaction(ctx, txBCS, signatures)
		if err != nil {
			if e.classify(err) == aggrerrors.Permanent {
				return backoff.Permanent(err)
			}
			return err
		}
		executed = result
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return transport.Executed{}, fmt.Errorf("%w: %v", aggrerrors.ErrBackoffExhausted, err)
	}
	return executed, nil
}

// Stats returns a snapshot of cumulative execution statistics.
func (e *Engine) Stats() Stats {
	total := atomic.LoadUint64(&e.totalExecutions)
	success := atomic.LoadUint64(&e.successfulExecutions)
	failed := atomic.LoadUint64(&e.failedExecutions)
	totalEffectsMs := float64(atomic.LoadUint64(&e.totalEffectsTimeMsMicros)) / 1000.0
	totalCheckpointMs := float64(atomic.LoadUint64(&e.totalCheckpointTimeMsMicros)) / 1000.0
	checkpointCount := atomic.LoadUint64(&e.checkpointCount)

	stats := Stats{
		TotalExecutions:      total,
		SuccessfulExecutions: success,
		FailedExecutions:     failed,
	}
	if success > 0 {
		avg := totalEffectsMs / float64(success)
		stats.AvgEffectsTimeMs = &avg
		stats.SuccessRate = float64(success) / float64(total)
	}
	if checkpointCount > 0 {
		avg := totalCheckpointMs / float64(checkpointCount)
		stats.AvgCheckpointTimeMs = &avg
	}
	if total > 0 {
		stats.SuccessRate = float64(success) / float64(total)
	}
	return stats
}

func routeClassName(kind route.Kind) string {
	switch kind {
	case route.KindDeepBookSingle:
		return "DeepBookSingle"
	case route.KindMultiVenueSplit:
		return "MultiVenueSplit"
	case route.KindCancelReplace:
		return "CancelReplace"
	case route.KindFlashLoanArb:
		return "FlashLoanArb"
	default:
		return "Unknown"
	}
}

// computeDigest hashes the serialized transaction bytes directly with
// signing.Blake2b256, i.e. Blake2b-512 truncated to 32 bytes (no intent
// prefix), matching the original's idempotency
// digest, which is distinct from the signing pre-image hash.
func computeDigest(txBCS []byte) string {
	full := signing.Blake2b256(txBCS)
	return hex.EncodeToString(full[:])
}

// Package httpapi exposes the route quoting and order execution engine
// over HTTP: a quote endpoint for previewing a route without executing
// it, an order endpoint that selects and executes in one call, and
// read/write access to execution and latency statistics.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
	"github.com/Numi2/sui-numi/internal/checkpoint"
	"github.com/Numi2/sui-numi/internal/control"
	"github.com/Numi2/sui-numi/internal/execution"
	"github.com/Numi2/sui-numi/internal/route"
	"github.com/Numi2/sui-numi/internal/venue"
	"github.com/Numi2/sui-numi/pkg/observability"
)

// Handler ties the route selector and execution engine together behind
// the HTTP surface, gated by admission control and per-route-class
// circuit breakers before an order reaches either one.
type Handler struct {
	logger     *observability.Logger
	selector   *route.Selector
	engine     *execution.Engine
	admission  *control.Admission
	breakers   *control.Breakers
	checkpoint *checkpoint.State
}

// NewHandler constructs a Handler. admission, breakers, and cursor may
// all be nil, in which case the corresponding gate or endpoint is
// skipped/disabled.
func NewHandler(logger *observability.Logger, selector *route.Selector, engine *execution.Engine, admission *control.Admission, breakers *control.Breakers, cursor *checkpoint.State) *Handler {
	return &Handler{logger: logger, selector: selector, engine: engine, admission: admission, breakers: breakers, checkpoint: cursor}
}

// RegisterRoutes wires the handler's endpoints onto r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/quote", h.quote).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/order", h.executeOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/latency", h.latencyStats).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/latency", h.updateLatency).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/checkpoint", h.checkpointCursor).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/checkpoint", h.advanceCheckpoint).Methods(http.MethodPost)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// limitOrderRequest is the wire shape of a client's order intent,
// before quantization or routing.
type limitOrderRequest struct {
	Pool          string  `json:"pool"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	IsBid         bool    `json:"is_bid"`
	ClientOrderID string  `json:"client_order_id"`
	PayWithDeep   *bool   `json:"pay_with_deep,omitempty"`
	ExpirationMs  *uint64 `json:"expiration_ms,omitempty"`
}

func (req limitOrderRequest) toIntent() venue.OrderIntent {
	payWithDeep := false
	if req.PayWithDeep != nil {
		payWithDeep = *req.PayWithDeep
	}
	return venue.OrderIntent{
		Pool:          req.Pool,
		Price:         req.Price,
		Quantity:      req.Quantity,
		IsBid:         req.IsBid,
		ClientOrderID: req.ClientOrderID,
		PayWithDeep:   payWithDeep,
		ExpirationMs:  req.ExpirationMs,
	}
}

type routePlanResponse struct {
	RouteType         string  `json:"route_type"`
	TotalCost         float64 `json:"total_cost"`
	L2Price           float64 `json:"l2_price"`
	Slippage          float64 `json:"slippage"`
	GasCost           float64 `json:"gas_cost"`
	LatencyPenalty    float64 `json:"latency_penalty"`
	RiskFactor        float64 `json:"risk_factor"`
	ExpectedLatencyMs uint64  `json:"expected_latency_ms"`
	UsesSharedObjects bool    `json:"uses_shared_objects"`
	EstimatedGas      uint64  `json:"estimated_gas"`
}

func toPlanResponse(plan route.Plan) routePlanResponse {
	return routePlanResponse{
		RouteType:         routeTypeName(plan.Route.Kind),
		TotalCost:         plan.Score.TotalCost,
		L2Price:           plan.Score.L2Price,
		Slippage:          plan.Score.Slippage,
		GasCost:           plan.Score.GasCost,
		LatencyPenalty:    plan.Score.LatencyPenalty,
		RiskFactor:        plan.Score.RiskFactor,
		ExpectedLatencyMs: plan.ExpectedLatencyMs,
		UsesSharedObjects: plan.UsesSharedObjects,
		EstimatedGas:      plan.EstimatedGas,
	}
}

func routeTypeName(kind route.Kind) string {
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

type routeQuoteResponse struct {
	Plan         routePlanResponse   `json:"plan"`
	Alternatives []routePlanResponse `json:"alternatives"`
}

// quote handles POST /api/v1/quote: selects a route without executing it.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req limitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	selection, err := h.selector.SelectRoute(r.Context(), req.toIntent())
	if err != nil {
		writeErrorForErr(w, err)
		return
	}

	alternatives := make([]routePlanResponse, 0, len(selection.Alternatives))
	for _, alt := range selection.Alternatives {
		alternatives = append(alternatives, toPlanResponse(alt))
	}

	writeJSON(w, http.StatusOK, routeQuoteResponse{
		Plan:         toPlanResponse(selection.Plan),
		Alternatives: alternatives,
	})
}

type limitOrderResponse struct {
	Digest           string   `json:"digest"`
	EffectsTimeMs    float64  `json:"effects_time_ms"`
	CheckpointTimeMs *float64 `json:"checkpoint_time_ms,omitempty"`
}

// executeOrder handles POST /api/v1/order: admits the request, selects a
// route, checks that route class's circuit breaker, and executes.
func (h *Handler) executeOrder(w http.ResponseWriter, r *http.Request) {
	var req limitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()

	if h.admission != nil {
		permit, err := h.admission.Acquire(ctx)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		defer permit.Release()
	}

	selection, err := h.selector.SelectRoute(ctx, req.toIntent())
	if err != nil {
		writeErrorForErr(w, err)
		return
	}

	routeClass := routeTypeName(selection.Plan.Route.Kind)
	if h.breakers != nil && h.breakers.IsOpen(routeClass) {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("circuit breaker open for route class %s", routeClass))
		return
	}

	result, err := h.engine.Execute(ctx, selection.Plan)
	if h.breakers != nil {
		if err != nil {
			h.breakers.RecordFailure(routeClass)
		} else {
			h.breakers.RecordSuccess(routeClass)
		}
	}
	if err != nil {
		if h.logger != nil {
			h.logger.Error(ctx, "order execution failed", err, map[string]interface{}{"pool": req.Pool})
		}
		writeErrorForErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, limitOrderResponse{
		Digest:           result.Digest,
		EffectsTimeMs:    result.EffectsTimeMs,
		CheckpointTimeMs: result.CheckpointTimeMs,
	})
}

type statsResponse struct {
	Execution execution.Stats    `json:"execution"`
	Latency   route.LatencyStats `json:"latency"`
}

// stats handles GET /api/v1/stats.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Execution: h.engine.Stats(),
		Latency:   h.selector.Stats(),
	})
}

// latencyStats handles GET /api/v1/latency.
func (h *Handler) latencyStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.selector.Stats())
}

type updateLatencyRequest struct {
	BaseLatencyMs   *uint64 `json:"base_latency_ms,omitempty"`
	SharedLatencyMs *uint64 `json:"shared_latency_ms,omitempty"`
}

type updateLatencyResponse struct {
	BaseLatencyMs           uint64 `json:"base_latency_ms"`
	SharedLatencyMs         uint64 `json:"shared_latency_ms"`
	PreviousBaseLatencyMs   uint64 `json:"previous_base_latency_ms"`
	PreviousSharedLatencyMs uint64 `json:"previous_shared_latency_ms"`
}

// updateLatency handles POST /api/v1/latency: overrides one or both
// latency estimates directly, echoing the previous values.
func (h *Handler) updateLatency(w http.ResponseWriter, r *http.Request) {
	var req updateLatencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	currentBase, currentShared := h.selector.LatencyEstimates()
	newBase, newShared := currentBase, currentShared
	if req.BaseLatencyMs != nil {
		newBase = *req.BaseLatencyMs
	}
	if req.SharedLatencyMs != nil {
		newShared = *req.SharedLatencyMs
	}

	h.selector.UpdateLatencyEstimates(newBase, newShared)

	writeJSON(w, http.StatusOK, updateLatencyResponse{
		BaseLatencyMs:           newBase,
		SharedLatencyMs:         newShared,
		PreviousBaseLatencyMs:   currentBase,
		PreviousSharedLatencyMs: currentShared,
	})
}

type checkpointResponse struct {
	Cursor uint64 `json:"cursor"`
	Known  bool   `json:"known"`
}

// checkpointCursor handles GET /api/v1/checkpoint: reports the latest
// checkpoint cursor observed by the upstream checkpoint-streaming
// ingester, if any has been reported yet.
func (h *Handler) checkpointCursor(w http.ResponseWriter, r *http.Request) {
	if h.checkpoint == nil {
		writeError(w, http.StatusNotFound, "checkpoint tracking is not configured")
		return
	}
	cursor, known := h.checkpoint.LastCursor()
	writeJSON(w, http.StatusOK, checkpointResponse{Cursor: cursor, Known: known})
}

type advanceCheckpointRequest struct {
	Cursor uint64 `json:"cursor"`
}

// advanceCheckpoint handles POST /api/v1/checkpoint: the upstream
// checkpoint-streaming ingester reports a newly observed cursor, which
// is fanned out to any local subscribers.
func (h *Handler) advanceCheckpoint(w http.ResponseWriter, r *http.Request) {
	if h.checkpoint == nil {
		writeError(w, http.StatusNotFound, "checkpoint tracking is not configured")
		return
	}
	var req advanceCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.checkpoint.Advance(r.Context(), checkpoint.Update{Cursor: req.Cursor})
	writeJSON(w, http.StatusOK, checkpointResponse{Cursor: req.Cursor, Known: true})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeErrorForErr picks 400 for caller-fault errors (unsupported route,
// intent that cannot be built or quantized) and 500 for everything else
// (duplicate submission, upstream/transport failures).
func writeErrorForErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if aggrerrors.IsCallerFault(err) {
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}

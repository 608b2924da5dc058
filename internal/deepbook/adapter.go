// Package deepbook is the concrete venue.Adapter for a DeepBook-style
// pool: read-side queries go to a fullnode JSON-RPC endpoint and a
// DeepBook indexer's REST API; transaction-building (the four Build*
// methods) requires the DeepBook Move-call SDK, which has no Go port
// anywhere in this module's dependency corpus, so those methods return
// a clearly wrapped "not implemented" error rather than a fabricated
// encoding. A real deployment supplies its own Adapter for those calls;
// this package still satisfies venue.Adapter so the rest of the router
// can be wired and tested end-to-end against everything else.
package deepbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
	"github.com/Numi2/sui-numi/internal/quant"
	"github.com/Numi2/sui-numi/internal/venue"
)

// Adapter is a DeepBook venue.Adapter backed by a Sui fullnode JSON-RPC
// endpoint (for chain-level reads) and a DeepBook indexer HTTP API (for
// pool-level reads).
type Adapter struct {
	fullnodeURL string
	indexerURL  string
	httpClient  *http.Client
}

// New constructs an Adapter. fullnodeURL is a Sui JSON-RPC endpoint;
// indexerURL is a DeepBook indexer's REST base URL.
func New(fullnodeURL, indexerURL string, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		fullnodeURL: fullnodeURL,
		indexerURL:  indexerURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// PoolParams fetches a pool's quantization constraints from the
// indexer's pool-metadata endpoint.
func (a *Adapter) PoolParams(ctx context.Context, pool string) (quant.PoolParams, error) {
	var out struct {
		TickSize float64 `json:"tick_size"`
		LotSize  float64 `json:"lot_size"`
		MinSize  float64 `json:"min_size"`
	}
	if err := a.indexerGet(ctx, fmt.Sprintf("/pools/%s/params", pool), &out); err != nil {
		return quant.PoolParams{}, fmt.Errorf("fetch pool params for %s: %w", pool, err)
	}
	return quant.PoolParams{TickSize: out.TickSize, LotSize: out.LotSize, MinSize: out.MinSize}, nil
}

// MidPrice fetches a pool's current mid price from the indexer.
func (a *Adapter) MidPrice(ctx context.Context, pool string) (float64, error) {
	var out struct {
		MidPrice float64 `json:"mid_price"`
	}
	if err := a.indexerGet(ctx, fmt.Sprintf("/pools/%s/mid-price", pool), &out); err != nil {
		return 0, fmt.Errorf("fetch mid price for %s: %w", pool, err)
	}
	return out.MidPrice, nil
}

// Level2TicksFromMid fetches an order book snapshot ticks deep from mid
// from the indexer.
func (a *Adapter) Level2TicksFromMid(ctx context.Context, pool string, ticks uint64) (venue.Level2Book, error) {
	var out struct {
		BidPrices     []float64 `json:"bid_prices"`
		BidQuantities []float64 `json:"bid_quantities"`
		AskPrices     []float64 `json:"ask_prices"`
		AskQuantities []float64 `json:"ask_quantities"`
	}
	path := fmt.Sprintf("/pools/%s/level2?ticks=%d", pool, ticks)
	if err := a.indexerGet(ctx, path, &out); err != nil {
		return venue.Level2Book{}, fmt.Errorf("fetch level2 book for %s: %w", pool, err)
	}
	return venue.Level2Book{
		BidPrices:     out.BidPrices,
		BidQuantities: out.BidQuantities,
		AskPrices:     out.AskPrices,
		AskQuantities: out.AskQuantities,
	}, nil
}

// TradeParams fetches a pool's fee schedule from the indexer.
func (a *Adapter) TradeParams(ctx context.Context, pool string) (venue.TradeParams, error) {
	var out struct {
		MakerFee float64 `json:"maker_fee"`
		TakerFee float64 `json:"taker_fee"`
	}
	if err := a.indexerGet(ctx, fmt.Sprintf("/pools/%s/trade-params", pool), &out); err != nil {
		return venue.TradeParams{}, fmt.Errorf("fetch trade params for %s: %w", pool, err)
	}
	return venue.TradeParams{MakerFee: out.MakerFee, TakerFee: out.TakerFee}, nil
}

// ReferenceGasPrice fetches the network's current reference gas price
// directly from the fullnode's sui_getReferenceGasPrice JSON-RPC method.
func (a *Adapter) ReferenceGasPrice(ctx context.Context) (uint64, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "sui_getReferenceGasPrice",
		"params":  []interface{}{},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: encode request: %v", aggrerrors.ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.fullnodeURL, bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", aggrerrors.ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", aggrerrors.ErrTransport, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result uint64 `json:"result,string"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", aggrerrors.ErrTransport, err)
	}
	if rpcResp.Error != nil {
		return 0, fmt.Errorf("%w: %s", aggrerrors.ErrProvider, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// errNotImplemented is returned by every PTB-building method: doing so
// correctly requires the DeepBook Move-call SDK's ABI knowledge, which
// this module's dependency corpus has no Go equivalent for.
var errNotImplemented = fmt.Errorf("%w: DeepBook PTB construction requires the Move-call SDK, not implemented by this adapter", aggrerrors.ErrBuildTx)

func (a *Adapter) BuildLimitOrderPTB(ctx context.Context, intent venue.OrderIntent) ([]byte, error) {
	return nil, errNotImplemented
}

func (a *Adapter) BuildLimitOrderPTBGasless(ctx context.Context, intent venue.OrderIntent) ([]byte, string, error) {
	return nil, "", errNotImplemented
}

func (a *Adapter) BuildMultiOrderPTB(ctx context.Context, intents []venue.OrderIntent) ([]byte, error) {
	return nil, errNotImplemented
}

func (a *Adapter) BuildCancelReplacePTB(ctx context.Context, orderID string, replace venue.OrderIntent) ([]byte, error) {
	return nil, errNotImplemented
}

func (a *Adapter) indexerGet(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.indexerURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", aggrerrors.ErrTransport, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", aggrerrors.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: indexer returned status %d", aggrerrors.ErrProvider, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", aggrerrors.ErrProvider, err)
	}
	return nil
}

var _ venue.Adapter = (*Adapter)(nil)

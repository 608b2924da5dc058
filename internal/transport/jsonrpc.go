package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
)

// HTTPJSONRPCClient is the concrete JSONRPCClient: it submits a signed
// transaction to a Sui fullnode's JSON-RPC endpoint via
// sui_executeTransactionBlock and reports the resulting digest and
// effects timing. It is the only piece of the submission path this repo
// implements concretely; BinaryRPCClient (gRPC) implementations are left
// to the deployment, same as the venue adapter.
type HTTPJSONRPCClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPJSONRPCClient constructs a client posting JSON-RPC requests to
// endpoint with the given request timeout.
func NewHTTPJSONRPCClient(endpoint string, timeout time.Duration) *HTTPJSONRPCClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPJSONRPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type executeTransactionResult struct {
	Digest  string `json:"digest"`
	Effects struct {
		Status struct {
			Status string `json:"status"`
		} `json:"status"`
	} `json:"effects"`
	Checkpoint *string `json:"checkpoint"`
}

type jsonrpcResponse struct {
	Result *executeTransactionResult `json:"result"`
	Error  *jsonrpcError             `json:"error"`
}

// SubmitTransaction posts txBCS and its serialized signatures to
// sui_executeTransactionBlock and waits for the fullnode's response.
// effects-time is measured as wall-clock round-trip time for this call,
// since the JSON-RPC response only reports whether effects and a
// checkpoint are present, not their own timing.
func (c *HTTPJSONRPCClient) SubmitTransaction(ctx context.Context, txBCS []byte, signatures [][]byte) (Executed, error) {
	encodedTx := base64.StdEncoding.EncodeToString(txBCS)
	encodedSigs := make([]string, len(signatures))
	for i, sig := range signatures {
		encodedSigs[i] = base64.StdEncoding.EncodeToString(sig)
	}

	reqBody := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sui_executeTransactionBlock",
		Params: []interface{}{
			encodedTx,
			encodedSigs,
			map[string]interface{}{"showEffects": true},
			"WaitForLocalExecution",
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Executed{}, fmt.Errorf("%w: encode request: %v", aggrerrors.ErrTransport, err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Executed{}, fmt.Errorf("%w: build request: %v", aggrerrors.ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Executed{}, fmt.Errorf("%w: %v", aggrerrors.ErrTransport, err)
	}
	defer resp.Body.Close()
	effectsTimeMs := float64(time.Since(start)) / float64(time.Millisecond)

	if resp.StatusCode != http.StatusOK {
		return Executed{}, fmt.Errorf("%w: unexpected status %d", aggrerrors.ErrTransport, resp.StatusCode)
	}

	var rpcResp jsonrpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return Executed{}, fmt.Errorf("%w: decode response: %v", aggrerrors.ErrTransport, err)
	}
	if rpcResp.Error != nil {
		return Executed{}, fmt.Errorf("%w: %s (code %d)", aggrerrors.ErrProvider, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if rpcResp.Result == nil {
		return Executed{}, fmt.Errorf("%w: empty result", aggrerrors.ErrProvider)
	}
	if rpcResp.Result.Effects.Status.Status != "" && rpcResp.Result.Effects.Status.Status != "success" {
		return Executed{}, fmt.Errorf("%w: transaction effects status %q", aggrerrors.ErrProvider, rpcResp.Result.Effects.Status.Status)
	}

	return Executed{
		Digest:        rpcResp.Result.Digest,
		EffectsTimeMs: effectsTimeMs,
		HasCheckpoint: rpcResp.Result.Checkpoint != nil,
	}, nil
}

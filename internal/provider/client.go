package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/better-wallet/controller/internal/outside"
	apperrors "github.com/better-wallet/controller/pkg/errors"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

const maxResponseSize = 10 << 20

// Client is a Provider backed by a JSON-RPC endpoint. Standard starknet_*
// methods use go-ethereum's rpc client; the outside execution method takes
// named params and is posted directly.
type Client struct {
	rpc        *rpc.Client
	url        string
	httpClient *http.Client
	chainID    felt.Felt
	nextID     atomic.Uint64
}

// NewClient dials rpcURL and auto-detects the chain ID
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}

	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	c := &Client{
		rpc:        rc,
		url:        rpcURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}

	// Auto-detect chain ID from RPC
	var chainID felt.Felt
	if err := rc.CallContext(ctx, &chainID, "starknet_chainId"); err != nil {
		rc.Close()
		return nil, &Error{Method: "starknet_chainId", Err: err}
	}
	c.chainID = chainID

	return c, nil
}

// ChainID returns the chain ID detected at dial time
func (c *Client) ChainID(_ context.Context) (felt.Felt, error) {
	return c.chainID, nil
}

// Nonce returns the pending nonce of address
func (c *Client) Nonce(ctx context.Context, address felt.Felt) (felt.Felt, error) {
	var nonce felt.Felt
	if err := c.rpc.CallContext(ctx, &nonce, "starknet_getNonce", types.BlockTagPending, address); err != nil {
		return felt.Zero, &Error{Method: "starknet_getNonce", Err: err}
	}
	return nonce, nil
}

type functionCall struct {
	ContractAddress    felt.Felt   `json:"contract_address"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector"`
	Calldata           []felt.Felt `json:"calldata"`
}

// Call runs a read-only call against the pending block
func (c *Client) Call(ctx context.Context, call types.Call) ([]felt.Felt, error) {
	req := functionCall{
		ContractAddress:    call.To,
		EntryPointSelector: call.Selector,
		Calldata:           nonNil(call.Calldata),
	}

	var out []felt.Felt
	if err := c.rpc.CallContext(ctx, &out, "starknet_call", req, types.BlockTagPending); err != nil {
		return nil, &Error{Method: "starknet_call", Err: err}
	}
	return out, nil
}

// EstimateFee estimates the fee of a single invoke transaction
func (c *Client) EstimateFee(ctx context.Context, tx types.InvokeTransaction) (*types.FeeEstimate, error) {
	var estimates []types.FeeEstimate
	err := c.rpc.CallContext(ctx, &estimates, "starknet_estimateFee",
		[]types.InvokeTransaction{tx}, []string{}, types.BlockTagPending)
	if err != nil {
		return nil, &Error{Method: "starknet_estimateFee", Err: err}
	}
	if len(estimates) != 1 {
		return nil, &Error{Method: "starknet_estimateFee", Err: fmt.Errorf("expected 1 estimate, got %d", len(estimates))}
	}
	return &estimates[0], nil
}

// AddInvokeTransaction submits a signed invoke transaction
func (c *Client) AddInvokeTransaction(ctx context.Context, tx types.InvokeTransaction) (*types.InvokeTransactionResult, error) {
	var res types.InvokeTransactionResult
	if err := c.rpc.CallContext(ctx, &res, "starknet_addInvokeTransaction", tx); err != nil {
		return nil, &Error{Method: "starknet_addInvokeTransaction", Err: err}
	}
	return &res, nil
}

// AddDeployAccountTransaction submits a signed account deployment
func (c *Client) AddDeployAccountTransaction(ctx context.Context, tx types.DeployAccountTransaction) (*types.DeployAccountTransactionResult, error) {
	var res types.DeployAccountTransactionResult
	if err := c.rpc.CallContext(ctx, &res, "starknet_addDeployAccountTransaction", tx); err != nil {
		return nil, &Error{Method: "starknet_addDeployAccountTransaction", Err: err}
	}
	return &res, nil
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      uint64         `json:"id"`
	Method  string         `json:"method"`
	Params  outside.Params `json:"params"`
}

type rpcResponse struct {
	Result *felt.Felt          `json:"result"`
	Error  *apperrors.RPCError `json:"error"`
}

// AddExecuteOutsideTransaction hands a signed outside execution to the relay
// serving this endpoint, which submits it and returns the transaction hash.
func (c *Client) AddExecuteOutsideTransaction(ctx context.Context, address, chainID felt.Felt, signed outside.Signed) (*types.OutsideExecutionResult, error) {
	if chainID != c.chainID {
		return nil, &Error{Method: outside.Method, Err: fmt.Errorf("%w: endpoint serves %s, request for %s", ErrChainMismatch, c.chainID, chainID)}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  outside.Method,
		Params:  outside.EncodeParams(address, signed),
	})
	if err != nil {
		return nil, &Error{Method: outside.Method, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Method: outside.Method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Method: outside.Method, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{Method: outside.Method, Err: err}
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &Error{Method: outside.Method, Err: fmt.Errorf("invalid response (HTTP %d): %w", resp.StatusCode, err)}
	}
	if out.Error != nil {
		return nil, &Error{Method: outside.Method, Err: out.Error}
	}
	if out.Result == nil {
		return nil, &Error{Method: outside.Method, Err: fmt.Errorf("response has no result")}
	}
	return &types.OutsideExecutionResult{TransactionHash: *out.Result}, nil
}

// Close closes the client connection
func (c *Client) Close() {
	c.rpc.Close()
}

func nonNil(elems []felt.Felt) []felt.Felt {
	if elems == nil {
		return []felt.Felt{}
	}
	return elems
}

var _ Provider = (*Client)(nil)

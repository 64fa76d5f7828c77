package mocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/better-wallet/controller/internal/outside"
	apperrors "github.com/better-wallet/controller/pkg/errors"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// Node error codes, as returned by Starknet RPC nodes.
const (
	CodeInvalidNonce      = 52
	CodeValidationFailure = 55
)

// NodeError is a JSON-RPC error returned by the fake node.
type NodeError struct {
	Code    int
	Message string
}

func (e *NodeError) Error() string  { return e.Message }
func (e *NodeError) ErrorCode() int { return e.Code }

// OutsideHandler answers the outside execution method in place of a relay.
type OutsideHandler func(req *outside.Request) (felt.Felt, *apperrors.RPCError)

// FunctionCall is the starknet_call request.
type FunctionCall struct {
	ContractAddress    felt.Felt   `json:"contract_address"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector"`
	Calldata           []felt.Felt `json:"calldata"`
}

// ExecutedCall is a call applied by an accepted invoke transaction.
type ExecutedCall struct {
	Sender felt.Felt
	Call   types.Call
}

// StarknetNode is an in-memory Starknet JSON-RPC node served over HTTP by
// go-ethereum's rpc server. Invoke transactions are checked for the sender's
// nonce and their calls are applied to a tiny state model: the controller
// delegate slot.
type StarknetNode struct {
	mu        sync.Mutex
	chainID   felt.Felt
	nonces    map[felt.Felt]uint64
	delegates map[felt.Felt]felt.Felt
	invokes   []types.InvokeTransaction
	deploys   []types.DeployAccountTransaction
	executed  []ExecutedCall
	requests  []string

	gasConsumed uint64
	gasPrice    uint64
	invokeErr   *NodeError
	onOutside   OutsideHandler

	rpcServer *rpc.Server
	server    *httptest.Server
}

// NewStarknetNode starts a node serving chainID.
func NewStarknetNode(chainID felt.Felt) *StarknetNode {
	n := &StarknetNode{
		chainID:     chainID,
		nonces:      make(map[felt.Felt]uint64),
		delegates:   make(map[felt.Felt]felt.Felt),
		gasConsumed: 1000,
		gasPrice:    100,
		rpcServer:   rpc.NewServer(),
	}
	if err := n.rpcServer.RegisterName("starknet", &starknetService{node: n}); err != nil {
		panic(err)
	}
	n.server = httptest.NewServer(n)
	return n
}

// URL returns the node's endpoint.
func (n *StarknetNode) URL() string {
	return n.server.URL
}

// Close stops the node.
func (n *StarknetNode) Close() {
	n.server.Close()
	n.rpcServer.Stop()
}

// ServeHTTP records the method and dispatches to the rpc server, or to the
// outside handler for the outside execution method.
func (n *StarknetNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	_ = json.Unmarshal(body, &req)

	n.mu.Lock()
	n.requests = append(n.requests, req.Method)
	handler := n.onOutside
	n.mu.Unlock()

	if req.Method == outside.Method && handler != nil {
		var resp *apperrors.Response
		parsed, err := outside.ParseParams(req.Params)
		if err != nil {
			resp = apperrors.Failure(req.ID, apperrors.InvalidParams(err.Error()))
		} else if hash, rpcErr := handler(parsed); rpcErr != nil {
			resp = apperrors.Failure(req.ID, rpcErr)
		} else {
			resp = apperrors.Result(req.ID, hash)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	n.rpcServer.ServeHTTP(w, r)
}

// SetOutsideHandler installs a handler for the outside execution method.
func (n *StarknetNode) SetOutsideHandler(h OutsideHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onOutside = h
}

// SetFee configures fee estimates.
func (n *StarknetNode) SetFee(gasConsumed, gasPrice uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gasConsumed, n.gasPrice = gasConsumed, gasPrice
}

// FailInvokes makes every invoke fail with a validation error until cleared.
func (n *StarknetNode) FailInvokes(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if message == "" {
		n.invokeErr = nil
		return
	}
	n.invokeErr = &NodeError{Code: CodeValidationFailure, Message: message}
}

// SetDelegate seeds the delegate slot of account.
func (n *StarknetNode) SetDelegate(account, delegate felt.Felt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delegates[account] = delegate
}

// Invokes returns accepted invoke transactions.
func (n *StarknetNode) Invokes() []types.InvokeTransaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.InvokeTransaction(nil), n.invokes...)
}

// Deploys returns accepted deployments.
func (n *StarknetNode) Deploys() []types.DeployAccountTransaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.DeployAccountTransaction(nil), n.deploys...)
}

// Executed returns the calls applied by accepted invokes.
func (n *StarknetNode) Executed() []ExecutedCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ExecutedCall(nil), n.executed...)
}

// Requests returns the JSON-RPC methods received, in order.
func (n *StarknetNode) Requests() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.requests...)
}

// TransactionHash is the hash the node assigns to an invoke from sender at nonce.
func TransactionHash(sender, nonce felt.Felt) felt.Felt {
	return felt.PedersenArray(felt.MustShortString("invoke"), sender, nonce)
}

var (
	selectorSetDelegate = felt.SelectorFromName("set_delegate_account")
	selectorGetDelegate = felt.SelectorFromName("delegate_account")
)

type starknetService struct {
	node *StarknetNode
}

func (s *starknetService) ChainId() felt.Felt {
	return s.node.chainID
}

func (s *starknetService) GetNonce(block string, address felt.Felt) felt.Felt {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	return felt.FromUint64(s.node.nonces[address])
}

func (s *starknetService) Call(req FunctionCall, block string) ([]felt.Felt, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()

	switch req.EntryPointSelector {
	case selectorGetDelegate:
		return []felt.Felt{s.node.delegates[req.ContractAddress]}, nil
	default:
		return nil, &NodeError{Code: 21, Message: "Requested entrypoint does not exist in the contract"}
	}
}

func (s *starknetService) EstimateFee(txs []types.InvokeTransaction, flags []string, block string) ([]types.FeeEstimate, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()

	out := make([]types.FeeEstimate, len(txs))
	for i := range txs {
		out[i] = types.FeeEstimate{
			GasConsumed: felt.FromUint64(s.node.gasConsumed),
			GasPrice:    felt.FromUint64(s.node.gasPrice),
			OverallFee:  felt.FromUint64(s.node.gasConsumed * s.node.gasPrice),
		}
	}
	return out, nil
}

func (s *starknetService) AddInvokeTransaction(tx types.InvokeTransaction) (*types.InvokeTransactionResult, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()

	if s.node.invokeErr != nil {
		return nil, s.node.invokeErr
	}

	expected := s.node.nonces[tx.SenderAddress]
	if tx.Nonce != felt.FromUint64(expected) {
		return nil, &NodeError{Code: CodeInvalidNonce, Message: fmt.Sprintf("Invalid transaction nonce: expected %d, got %s", expected, tx.Nonce)}
	}

	calls, err := decodeCalls(tx.Calldata)
	if err != nil {
		return nil, &NodeError{Code: CodeValidationFailure, Message: err.Error()}
	}
	for _, c := range calls {
		if c.Selector == selectorSetDelegate && len(c.Calldata) == 1 {
			s.node.delegates[c.To] = c.Calldata[0]
		}
		s.node.executed = append(s.node.executed, ExecutedCall{Sender: tx.SenderAddress, Call: c})
	}

	s.node.nonces[tx.SenderAddress] = expected + 1
	s.node.invokes = append(s.node.invokes, tx)
	return &types.InvokeTransactionResult{TransactionHash: TransactionHash(tx.SenderAddress, tx.Nonce)}, nil
}

func (s *starknetService) AddDeployAccountTransaction(tx types.DeployAccountTransaction) (*types.DeployAccountTransactionResult, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()

	address := types.ContractAddress(tx.ContractAddressSalt, tx.ClassHash, tx.ConstructorCalldata, felt.Zero)
	s.node.nonces[address] = 1
	s.node.deploys = append(s.node.deploys, tx)
	return &types.DeployAccountTransactionResult{
		TransactionHash: felt.PedersenArray(felt.MustShortString("deploy_account"), address),
		ContractAddress: address,
	}, nil
}

func decodeCalls(calldata []felt.Felt) ([]types.Call, error) {
	if len(calldata) == 0 {
		return nil, fmt.Errorf("empty calldata")
	}
	n, ok := calldata[0].Uint64()
	if !ok {
		return nil, fmt.Errorf("call count out of range")
	}
	rest := calldata[1:]

	calls := make([]types.Call, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(rest) < 3 {
			return nil, fmt.Errorf("truncated call %d", i)
		}
		size, ok := rest[2].Uint64()
		if !ok || uint64(len(rest)-3) < size {
			return nil, fmt.Errorf("truncated calldata for call %d", i)
		}
		calls = append(calls, types.Call{
			To:       rest[0],
			Selector: rest[1],
			Calldata: append([]felt.Felt(nil), rest[3:3+size]...),
		})
		rest = rest[3+size:]
	}
	return calls, nil
}

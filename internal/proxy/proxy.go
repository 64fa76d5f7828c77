// Package proxy implements the relay proxy: a JSON-RPC intermediary that
// submits outside executions with a funded relayer account and forwards
// every other request to the upstream node untouched.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/better-wallet/controller/internal/account"
	"github.com/better-wallet/controller/internal/logger"
	"github.com/better-wallet/controller/internal/metrics"
	"github.com/better-wallet/controller/internal/outside"
	apperrors "github.com/better-wallet/controller/pkg/errors"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

const (
	// DefaultFeeMultiplier pads the relayer's fee estimate.
	DefaultFeeMultiplier = 1.1

	defaultSubmitTimeout = 60 * time.Second
)

// Proxy carries everything a request handler needs. The relayer's nonce
// sequence is shared across connections, so submissions hold mu from nonce
// lookup through acceptance by the node.
type Proxy struct {
	upstream      string
	client        *http.Client
	relayer       account.Account
	metrics       *metrics.Metrics
	feeMultiplier float64
	submitTimeout time.Duration

	mu sync.Mutex
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithHTTPClient sets the client used to reach the upstream node.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) { p.client = c }
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}

// WithFeeMultiplier overrides DefaultFeeMultiplier.
func WithFeeMultiplier(m float64) Option {
	return func(p *Proxy) { p.feeMultiplier = m }
}

// WithSubmitTimeout bounds a relayed submission once the relayer lock is held.
func WithSubmitTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.submitTimeout = d }
}

// New builds a proxy in front of upstream that relays with relayer.
func New(upstream string, relayer account.Account, opts ...Option) *Proxy {
	p := &Proxy{
		upstream:      upstream,
		relayer:       relayer,
		feeMultiplier: DefaultFeeMultiplier,
		submitTimeout: defaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = newUpstreamClient()
	}
	return p
}

// newUpstreamClient disables transparent gzip so forwarded bodies reach the
// caller exactly as the upstream sent them.
func newUpstreamClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	return &http.Client{Transport: transport, Timeout: 2 * time.Minute}
}

// envelope is the part of a JSON-RPC request the proxy inspects.
type envelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// ServeHTTP relays the outside execution method and forwards everything else.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, apperrors.Failure(nil, &apperrors.RPCError{
				Code:    apperrors.CodeInvalidRequest,
				Message: "request body too large",
			}))
			return
		}
		writeJSON(w, http.StatusBadRequest, apperrors.Failure(nil, &apperrors.RPCError{
			Code:    apperrors.CodeInvalidRequest,
			Message: "failed to read request body",
		}))
		return
	}

	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Method == outside.Method {
		resp, outcome := p.relay(r.Context(), env)
		writeJSON(w, http.StatusOK, resp)
		p.metrics.Observe(metrics.KindRelay, outcome, time.Since(start))
		return
	}

	outcome := p.forward(w, r, body)
	p.metrics.Observe(metrics.KindForward, outcome, time.Since(start))
}

// relay turns an outside execution into a relayer invoke. Malformed params
// answer with the request id; execution failures omit it.
func (p *Proxy) relay(ctx context.Context, env envelope) (*apperrors.Response, string) {
	req, err := outside.ParseParams(env.Params)
	if err != nil {
		logger.Warn(ctx, "rejecting outside execution", "error", err)
		return apperrors.Failure(env.ID, apperrors.InvalidParams(err.Error())), metrics.OutcomeInvalidParams
	}

	hash, err := p.submit(ctx, req)
	if err != nil {
		logger.Error(ctx, "outside execution failed", "account", req.Address.String(), "error", err)
		return apperrors.FailureWithoutID(apperrors.ExecutionError(err)), metrics.OutcomeExecution
	}

	logger.Info(ctx, "outside execution relayed",
		"account", req.Address.String(),
		"calls", len(req.Signed.Execution.Calls),
		"transaction_hash", hash.String(),
	)
	return apperrors.Result(env.ID, hash.String()), metrics.OutcomeOK
}

// submit signs and sends the relayer invoke. Once the lock is held the
// submission no longer follows the caller's cancellation: a transaction that
// reached the node is not rolled back because the client went away.
func (p *Proxy) submit(ctx context.Context, req *outside.Request) (felt.Felt, error) {
	waitStart := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.ObserveLockWait(time.Since(waitStart))

	if err := ctx.Err(); err != nil {
		return felt.Zero, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.submitTimeout)
	defer cancel()

	res, err := account.NewExecution(p.relayer, []types.Call{req.Signed.Call(req.Address)}).
		FeeEstimateMultiplier(p.feeMultiplier).
		Send(ctx)
	if err != nil {
		return felt.Zero, err
	}

	p.metrics.Submitted()
	return res.TransactionHash, nil
}

// forward replays the request upstream with its headers and copies the
// upstream response back unmodified.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, body []byte) string {
	ctx := r.Context()

	out, err := http.NewRequestWithContext(ctx, r.Method, p.upstream, bytes.NewReader(body))
	if err != nil {
		logger.Error(ctx, "failed to build upstream request", "error", err)
		writeJSON(w, http.StatusBadGateway, apperrors.Failure(nil, upstreamError()))
		return metrics.OutcomeUpstream
	}
	out.Header = r.Header.Clone()

	resp, err := p.client.Do(out)
	if err != nil {
		logger.Error(ctx, "upstream request failed", "error", err)
		writeJSON(w, http.StatusBadGateway, apperrors.Failure(nil, upstreamError()))
		return metrics.OutcomeUpstream
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		w.Header()[key] = append([]string(nil), values...)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Warn(ctx, "failed to copy upstream response", "error", err)
	}
	return metrics.OutcomeOK
}

func upstreamError() *apperrors.RPCError {
	return &apperrors.RPCError{Code: apperrors.CodeInternalError, Message: "upstream unavailable"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

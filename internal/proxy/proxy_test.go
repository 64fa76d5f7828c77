package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/controller/internal/account"
	"github.com/better-wallet/controller/internal/config"
	"github.com/better-wallet/controller/internal/metrics"
	"github.com/better-wallet/controller/internal/middleware"
	"github.com/better-wallet/controller/internal/outside"
	"github.com/better-wallet/controller/internal/provider"
	"github.com/better-wallet/controller/internal/signer"
	apperrors "github.com/better-wallet/controller/pkg/errors"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
	"github.com/better-wallet/controller/tests/mocks"
)

var (
	sepolia     = felt.MustShortString("SN_SEPOLIA")
	relayerAddr = felt.MustFromHex("0x4e1a7")
	userAddr    = felt.MustFromHex("0x5e5")
	token       = felt.MustFromHex("0xAA")
)

type relayHarness struct {
	node    *mocks.StarknetNode
	proxy   *Proxy
	metrics *metrics.Metrics
	server  *httptest.Server
}

func newRelayHarness(t *testing.T) *relayHarness {
	t.Helper()

	node := mocks.NewStarknetNode(sepolia)
	t.Cleanup(node.Close)

	p, err := provider.NewClient(context.Background(), node.URL())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	key, err := signer.GenerateKey()
	require.NoError(t, err)
	relayer := account.NewOwnerAccount(p, signer.Dual(signer.NewOwner(key), nil), relayerAddr, sepolia)

	m := metrics.New()
	px := New(node.URL(), relayer, WithMetrics(m))
	srv := httptest.NewServer(px)
	t.Cleanup(srv.Close)

	return &relayHarness{node: node, proxy: px, metrics: m, server: srv}
}

func signedExecution(nonce uint64) outside.Signed {
	return outside.Signed{
		Execution: outside.Execution{
			Caller:        outside.AnyCaller,
			Nonce:         felt.FromUint64(nonce),
			ExecuteAfter:  0,
			ExecuteBefore: 4_102_444_800,
			Calls: []types.Call{
				types.NewCall(token, "transfer", felt.FromUint64(7), felt.FromUint64(100), felt.Zero),
			},
		},
		Signature: []felt.Felt{felt.FromUint64(1), felt.FromUint64(2)},
	}
}

func relayBody(t *testing.T, id string, params any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"method":  outside.Method,
		"params":  params,
	})
	require.NoError(t, err)
	return raw
}

func post(t *testing.T, url string, body []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func TestRelaySuccess(t *testing.T) {
	h := newRelayHarness(t)
	signed := signedExecution(1)

	resp, body := post(t, h.server.URL, relayBody(t, `1`, outside.EncodeParams(userAddr, signed)))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	want := mocks.TransactionHash(relayerAddr, felt.Zero).String()
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"`+want+`"}`, string(body))

	executed := h.node.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, relayerAddr, executed[0].Sender)
	assert.Equal(t, signed.Call(userAddr), executed[0].Call)
	assert.Equal(t, felt.SelectorFromName(outside.EntrypointV2), executed[0].Call.Selector)
}

func TestRelaySuccess_WithoutID(t *testing.T) {
	h := newRelayHarness(t)

	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  outside.Method,
		"params":  outside.EncodeParams(userAddr, signedExecution(1)),
	})
	require.NoError(t, err)

	_, body := post(t, h.server.URL, raw)

	want := mocks.TransactionHash(relayerAddr, felt.Zero).String()
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"result":"`+want+`"}`, string(body))
}

func TestRelayEntrypointNames(t *testing.T) {
	h := newRelayHarness(t)

	params := outside.EncodeParams(userAddr, signedExecution(1))
	params.OutsideExecution.Calls[0].Entrypoint = "transfer"

	_, body := post(t, h.server.URL, relayBody(t, `"a"`, params))

	var resp apperrors.Response
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Nil(t, resp.Error)

	executed := h.node.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, signedExecution(1).Call(userAddr), executed[0].Call)
}

func TestRelayErrors(t *testing.T) {
	t.Run("malformed params keep the id", func(t *testing.T) {
		h := newRelayHarness(t)

		resp, body := post(t, h.server.URL, relayBody(t, `42`, map[string]any{"address": "zz"}))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var out map[string]any
		require.NoError(t, json.Unmarshal(body, &out))
		assert.EqualValues(t, 42, out["id"])
		errObj := out["error"].(map[string]any)
		assert.EqualValues(t, apperrors.CodeInvalidParams, errObj["code"])
		assert.Empty(t, h.node.Invokes())
	})

	t.Run("missing params", func(t *testing.T) {
		h := newRelayHarness(t)

		_, body := post(t, h.server.URL, []byte(`{"jsonrpc":"2.0","id":3,"method":"`+outside.Method+`"}`))

		var resp apperrors.Response
		require.NoError(t, json.Unmarshal(body, &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, apperrors.CodeInvalidParams, resp.Error.Code)
		assert.JSONEq(t, `3`, string(resp.ID))
	})

	t.Run("malformed params without an id answer with null", func(t *testing.T) {
		h := newRelayHarness(t)

		_, body := post(t, h.server.URL, []byte(`{"jsonrpc":"2.0","method":"`+outside.Method+`","params":{"address":"zz"}}`))

		var out map[string]any
		require.NoError(t, json.Unmarshal(body, &out))
		require.Contains(t, out, "id")
		assert.Nil(t, out["id"])
		errObj := out["error"].(map[string]any)
		assert.EqualValues(t, apperrors.CodeInvalidParams, errObj["code"])
	})

	t.Run("execution failure omits the id", func(t *testing.T) {
		h := newRelayHarness(t)
		h.node.FailInvokes("argent/invalid-signature")

		resp, body := post(t, h.server.URL, relayBody(t, `9`, outside.EncodeParams(userAddr, signedExecution(1))))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var out map[string]any
		require.NoError(t, json.Unmarshal(body, &out))
		assert.NotContains(t, out, "id")
		errObj := out["error"].(map[string]any)
		assert.EqualValues(t, apperrors.CodeExecutionError, errObj["code"])
		assert.Contains(t, errObj["data"], "argent/invalid-signature")
	})
}

func TestConcurrentRelaysShareNonceSequence(t *testing.T) {
	h := newRelayHarness(t)
	const n = 8

	bodies := make([][]byte, n)
	for i := range bodies {
		bodies[i] = relayBody(t, `1`, outside.EncodeParams(userAddr, signedExecution(uint64(i+1))))
	}

	var wg sync.WaitGroup
	results := make([]apperrors.Response, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(h.server.URL, "application/json", bytes.NewReader(bodies[i]))
			if err != nil {
				return
			}
			defer resp.Body.Close()
			_ = json.NewDecoder(resp.Body).Decode(&results[i])
		}(i)
	}
	wg.Wait()

	hashes := make(map[string]bool)
	for i, r := range results {
		require.Nil(t, r.Error, "relay %d", i)
		hashes[r.Result.(string)] = true
	}
	assert.Len(t, hashes, n)
	assert.Len(t, h.node.Invokes(), n)
}

func TestForwardIsVerbatim(t *testing.T) {
	var gotHeader, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Client")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("X-Upstream", "node-1")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("{\"jsonrpc\":\"2.0\",  \"id\":5,\"error\":{\"code\":-32601}}\n"))
	}))
	defer upstream.Close()

	px := New(upstream.URL, nil)
	srv := httptest.NewServer(px)
	defer srv.Close()

	tests := []struct {
		name string
		body string
	}{
		{"other method", `{"jsonrpc":"2.0","id":5,"method":"starknet_blockNumber"}`},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"` + outside.Method + `"}]`},
		{"not json", `hello`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("X-Client", "dapp")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.body, gotBody)
			assert.Equal(t, "dapp", gotHeader)
			assert.Equal(t, http.StatusTeapot, resp.StatusCode)
			assert.Equal(t, "node-1", resp.Header.Get("X-Upstream"))
			assert.Equal(t, "{\"jsonrpc\":\"2.0\",  \"id\":5,\"error\":{\"code\":-32601}}\n", string(body))
		})
	}
}

func TestForwardUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	srv := httptest.NewServer(New(url, nil))
	defer srv.Close()

	resp, body := post(t, srv.URL, []byte(`{"jsonrpc":"2.0","id":1,"method":"starknet_chainId"}`))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var out apperrors.Response
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotNil(t, out.Error)
	assert.Equal(t, apperrors.CodeInternalError, out.Error.Code)
}

func TestServer(t *testing.T) {
	h := newRelayHarness(t)

	cfg := &config.Config{
		ListenAddr:       ":0",
		MaxBodySize:      4 << 10,
		RateLimitEnabled: false,
		RateLimitRPS:     50,
		RateLimitBurst:   100,
	}
	s := NewServer(cfg, h.proxy, h.metrics)
	defer s.rateLimiter.Stop()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("relay through middleware", func(t *testing.T) {
		resp, body := post(t, srv.URL, relayBody(t, `1`, outside.EncodeParams(userAddr, signedExecution(1))))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

		var out apperrors.Response
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Nil(t, out.Error)
	})

	t.Run("oversized body", func(t *testing.T) {
		resp, _ := post(t, srv.URL, bytes.Repeat([]byte("x"), 8<<10))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Contains(t, string(body), `controller_relay_requests_total{kind="relay",outcome="ok"} 1`)
		assert.Contains(t, string(body), "controller_relay_relayer_submissions_total 1")
	})
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONRPCServer(t *testing.T, handler func(method string, params []any) (any, *RPCError)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string `json:"jsonrpc"`
			ID      uint64 `json:"id"`
			Method  string `json:"method"`
			Params  []any  `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
			return
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %q", req.JSONRPC)
		}

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPProvider_Call(t *testing.T) {
	server := newJSONRPCServer(t, func(method string, params []any) (any, *RPCError) {
		assert.Equal(t, "eth_getBlockByNumber", method)
		assert.Equal(t, []any{"0x10", false}, params)
		return map[string]any{"number": "0x10"}, nil
	})

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	result, err := p.Call(context.Background(), "eth_getBlockByNumber", []any{"0x10", false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"number":"0x10"}`, string(result))

	health := p.GetHealth()
	assert.True(t, health.Available)
	assert.Zero(t, health.ErrorRate)
	assert.True(t, p.IsAvailable())
}

func TestHTTPProvider_NilParamsSentAsEmptyArray(t *testing.T) {
	server := newJSONRPCServer(t, func(method string, params []any) (any, *RPCError) {
		assert.NotNil(t, params)
		assert.Empty(t, params)
		return "0x1", nil
	})

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	result, err := p.Call(context.Background(), "eth_chainId", nil)
	require.NoError(t, err)
	assert.Equal(t, `"0x1"`, string(result))
}

func TestHTTPProvider_NullResult(t *testing.T) {
	server := newJSONRPCServer(t, func(string, []any) (any, *RPCError) { return nil, nil })

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	result, err := p.Call(context.Background(), "eth_getBlockByHash", []any{"0xabc", false})
	require.NoError(t, err)
	assert.Equal(t, "null", string(result))
}

func TestHTTPProvider_RPCError(t *testing.T) {
	server := newJSONRPCServer(t, func(string, []any) (any, *RPCError) {
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	_, err := p.Call(context.Background(), "eth_foo", nil)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, 1.0, p.GetHealth().ErrorRate)
}

func TestHTTPProvider_ThrottledOn429(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	_, err := p.Call(context.Background(), "eth_blockNumber", nil)

	var throttleErr *ThrottleError
	require.True(t, errors.As(err, &throttleErr))
	assert.Equal(t, 7*time.Second, throttleErr.RetryAfter)
	assert.Equal(t, 1, p.Monitor.GetStats().ThrottleCount429)
}

func TestHTTPProvider_BlockedOn403(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	_, err := p.Call(context.Background(), "eth_blockNumber", nil)
	require.Error(t, err)
	assert.False(t, p.IsAvailable())

	// blocked providers are not contacted again until the backoff expires
	_, err = p.Call(context.Background(), "eth_blockNumber", nil)
	var throttleErr *ThrottleError
	require.True(t, errors.As(err, &throttleErr))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPProvider_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	_, err := p.Call(context.Background(), "eth_blockNumber", nil)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "upstream down", httpErr.Body)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

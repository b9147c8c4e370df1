package naoris

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"naoris_farm/store"
)

func testPolicy() Policy {
	return Policy{
		Timeout:        2 * time.Second,
		RequestDelay:   time.Millisecond,
		RateLimitPause: time.Millisecond,
	}
}

func testClient(t *testing.T, srv *httptest.Server, tokens store.StringMap) *Client {
	t.Helper()
	endpoints := Endpoints{
		Base:          srv.URL,
		WalletDetails: srv.URL + "/walletDetails",
		ExtAPI:        srv.URL + "/ext",
		Ping:          srv.URL + "/api/ping",
	}
	c, err := NewClient(endpoints, "0xabc", 111111111, "", nil, tokens,
		zap.NewNop().Sugar(), testPolicy())
	require.NoError(t, err)
	return c
}

func TestExecuteUnwrapsNestedData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"statusCode":201,"data":{"x":1}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, store.NewMemoryStringMap())
	res, err := c.Execute(context.Background(), srv.URL+"/nested", http.MethodGet, nil, RequestOptions{Retries: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 201, res.Status)
	assert.JSONEq(t, `{"x":1}`, string(res.Data))
}

func TestExecuteReturnsBareBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"y":2}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, store.NewMemoryStringMap())
	res, err := c.Execute(context.Background(), srv.URL+"/bare", http.MethodGet, nil, RequestOptions{Retries: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"y":2}`, string(res.Data))
}

func TestExecuteBadRequestNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"contract changed"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, store.NewMemoryStringMap())
	res, err := c.Execute(context.Background(), srv.URL+"/x", http.MethodPost, map[string]string{}, RequestOptions{Retries: 3})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "contract changed", res.ErrMsg)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecuteGoneOnPingIsSoftSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `{"message":"already pinged"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, store.NewMemoryStringMap())
	res, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusGone, res.Status)
	assert.JSONEq(t, `"already pinged"`, string(res.Data))
}

func TestExecuteGoneElsewhereIsInformational(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `{"message":"gone"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, store.NewMemoryStringMap())
	res, err := c.Execute(context.Background(), srv.URL+"/other", http.MethodGet, nil, RequestOptions{Retries: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusGone, res.Status)
}

func TestExecuteInformationalClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"not yet"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, store.NewMemoryStringMap())
	res, err := c.Execute(context.Background(), srv.URL+"/x", http.MethodGet, nil, RequestOptions{Retries: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.JSONEq(t, `"not yet"`, string(res.Data))
}

func TestExecuteTransientExhaustsBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, store.NewMemoryStringMap())
	res, err := c.Execute(context.Background(), srv.URL+"/x", http.MethodGet, nil, RequestOptions{Retries: 1})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "boom", res.ErrMsg)
	// one original attempt plus one retry
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecuteRateLimitedSpendsBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"slow down"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, store.NewMemoryStringMap())
	res, err := c.Execute(context.Background(), srv.URL+"/x", http.MethodGet, nil, RequestOptions{Retries: 1})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecuteUnauthorizedRefreshesAndRetriesOnce(t *testing.T) {
	newToken := testJWT(t, time.Now().Add(time.Hour))
	var dataCalls, authCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/generateToken", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authCalls, 1)
		fmt.Fprintf(w, `{"statusCode":200,"data":{"token":"%s"}}`, newToken)
	})
	mux.HandleFunc("/guarded", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dataCalls, 1)
		if r.Header.Get("Authorization") != "Bearer "+newToken {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"expired"}`)
			return
		}
		fmt.Fprint(w, `{"statusCode":200,"data":{"ok":true}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := store.NewMemoryStringMap()
	require.NoError(t, tokens.Set("0xabc", "stale-token"))

	c := testClient(t, srv, tokens)
	res, err := c.Execute(context.Background(), srv.URL+"/guarded", http.MethodGet, nil, RequestOptions{Retries: 1})
	require.NoError(t, err)

	// re-issued exactly once, outcome shape unchanged
	assert.True(t, res.Success)
	var payload struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &payload))
	assert.True(t, payload.OK)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dataCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&authCalls))

	// new token persisted write-through
	stored, ok := tokens.Get("0xabc")
	require.True(t, ok)
	assert.Equal(t, newToken, stored)
	assert.True(t, c.TokenRefreshed())
}

func TestExecuteUnauthorizedWithFailedRefreshIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/generateToken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"auth down"}`)
	})
	mux.HandleFunc("/guarded", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"expired"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := store.NewMemoryStringMap()
	require.NoError(t, tokens.Set("0xabc", "stale-token"))

	c := testClient(t, srv, tokens)
	_, err := c.Execute(context.Background(), srv.URL+"/guarded", http.MethodGet, nil, RequestOptions{Retries: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthUnrecoverable)
}

func TestValidTokenKeepsUnexpiredToken(t *testing.T) {
	var authCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authCalls, 1)
		fmt.Fprint(w, `{"statusCode":200,"data":{"token":"fresh"}}`)
	}))
	defer srv.Close()

	valid := testJWT(t, time.Now().Add(time.Hour))
	tokens := store.NewMemoryStringMap()
	require.NoError(t, tokens.Set("0xabc", valid))

	c := testClient(t, srv, tokens)
	got, err := c.ValidToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, valid, got)
	assert.Equal(t, int32(0), atomic.LoadInt32(&authCalls))
	assert.False(t, c.TokenRefreshed())
}

func TestValidTokenRefreshesExpired(t *testing.T) {
	newToken := testJWT(t, time.Now().Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/generateToken", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "0xabc", body["wallet_address"])
		fmt.Fprintf(w, `{"statusCode":200,"data":{"token":"%s"}}`, newToken)
	}))
	defer srv.Close()

	tokens := store.NewMemoryStringMap()
	require.NoError(t, tokens.Set("0xabc", testJWT(t, time.Now().Add(-time.Hour))))

	c := testClient(t, srv, tokens)
	got, err := c.ValidToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, newToken, got)
	assert.True(t, c.TokenRefreshed())

	stored, _ := tokens.Get("0xabc")
	assert.Equal(t, newToken, stored)
}

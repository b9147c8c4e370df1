package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"naoris_farm/models"
	"naoris_farm/naoris"
	"naoris_farm/store"
	"naoris_farm/utils"
)

func init() {
	utils.Logger = zap.NewNop().Sugar()
}

func testJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// fakeRemote is a configurable stand-in for the whole remote API surface.
type fakeRemote struct {
	mux        *http.ServeMux
	srv        *httptest.Server
	whitelists int32
	toggles    int32
	pings      int32
}

func newFakeRemote(t *testing.T) *fakeRemote {
	f := &fakeRemote{mux: http.NewServeMux()}
	f.mux.HandleFunc("/walletDetails", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"statusCode":200,"data":{"details":{"totalEarnings":100,"todayEarnings":5,"activeRatePerMinute":0.001,"totalUptimeMinutes":60}}}`)
	})
	f.mux.HandleFunc("/api/wallet-details", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"statusCode":200,"data":{"message":{"totalEarnings":80}}}`)
	})
	f.mux.HandleFunc("/ext/getWhitelist", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.whitelists, 1)
		fmt.Fprint(w, `{"statusCode":200,"data":{"whitelist":["naorisprotocol.network"]}}`)
	})
	f.mux.HandleFunc("/api/addWhitelist", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"statusCode":200,"data":{"message":"added"}}`)
	})
	f.mux.HandleFunc("/api/toggle", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.toggles, 1)
		fmt.Fprint(w, `{"statusCode":200,"data":{"message":"ok"}}`)
	})
	f.mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.pings, 1)
		fmt.Fprint(w, `{"statusCode":200,"data":{"message":"pong"}}`)
	})
	f.mux.HandleFunc("/api/htb-event", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"statusCode":200,"data":{"message":"recorded"}}`)
	})
	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRemote) endpoints() naoris.Endpoints {
	return naoris.Endpoints{
		Base:          f.srv.URL,
		WalletDetails: f.srv.URL + "/walletDetails",
		ExtAPI:        f.srv.URL + "/ext",
		Ping:          f.srv.URL + "/api/ping",
	}
}

func testRunner(t *testing.T, f *fakeRemote, initial models.LocalState) (*Runner, chan models.WorkerEvent) {
	t.Helper()
	tokens := store.NewMemoryStringMap()
	require.NoError(t, tokens.Set("0xabc", testJWT(t, time.Now().Add(time.Hour))))

	events := make(chan models.WorkerEvent, 32)
	r := New(Config{
		Unit:      models.AccountUnit{Address: "0xabc", DeviceID: 111111111, DeviceCount: 1},
		Index:     0,
		RunID:     "test-run",
		Endpoints: f.endpoints(),
		Tokens:    tokens,
		Policy: naoris.Policy{
			Timeout:        2 * time.Second,
			RequestDelay:   time.Millisecond,
			RateLimitPause: time.Millisecond,
		},
		Initial: initial,
		Events:  events,
	})
	return r, events
}

func drainDeltas(events chan models.WorkerEvent) []models.WorkerEvent {
	close(events)
	var deltas []models.WorkerEvent
	for ev := range events {
		if ev.Kind == models.EventStateDelta {
			deltas = append(deltas, ev)
		}
	}
	return deltas
}

func TestRunHappyPathReconcilesEarnings(t *testing.T) {
	f := newFakeRemote(t)
	r, events := testRunner(t, f, models.LocalState{TotalEarnings: 40})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateDone, r.State())

	deltas := drainDeltas(events)
	require.NotEmpty(t, deltas)
	last := deltas[len(deltas)-1].State

	// max of local 40, remote details 100, remote balance 80
	assert.Equal(t, 100.0, last.TotalEarnings)
	assert.Equal(t, models.MinRatePerMinute, last.ActiveRatePerMinute)
	assert.Equal(t, 60.0, last.TotalUptimeMinutes)
	assert.True(t, last.IsActive)
	assert.True(t, last.IsWhitelisted)
	assert.Equal(t, "0xabc_111111111", deltas[0].Key)
	assert.False(t, last.LastPing.IsZero())
}

func TestWhitelistCheckIsIdempotent(t *testing.T) {
	f := newFakeRemote(t)
	r, _ := testRunner(t, f, models.LocalState{IsWhitelisted: true})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateDone, r.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.whitelists))
}

func TestActivationSkippedWhenActiveAndTokenKept(t *testing.T) {
	f := newFakeRemote(t)
	r, _ := testRunner(t, f, models.LocalState{IsActive: true})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateDone, r.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.toggles))
}

func TestHeartbeatGoneStillCompletes(t *testing.T) {
	f := newFakeRemote(t)
	f.mux.HandleFunc("/api/ping2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `{"message":"already pinged"}`)
	})
	r, events := testRunner(t, f, models.LocalState{})
	r.cfg.Endpoints.Ping = f.srv.URL + "/api/ping2"

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateDone, r.State())

	deltas := drainDeltas(events)
	require.NotEmpty(t, deltas)
	assert.False(t, deltas[len(deltas)-1].State.LastPing.IsZero())
}

func TestSyncFailureSkipsCycle(t *testing.T) {
	f := newFakeRemote(t)
	f.mux.HandleFunc("/walletDetails2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"down"}`)
	})
	r, events := testRunner(t, f, models.LocalState{})
	r.cfg.Endpoints.WalletDetails = f.srv.URL + "/walletDetails2"

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateTokenReady, r.State())
	assert.Empty(t, drainDeltas(events))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.whitelists))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.toggles))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.pings))
}

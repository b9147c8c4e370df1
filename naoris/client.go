package naoris

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"naoris_farm/metrics"
	"naoris_farm/store"
	"naoris_farm/utils"
)

// ErrAuthUnrecoverable means a 401 could not be cured by a token refresh.
// Nothing useful can happen for any account without credentials, so the
// orchestrator aborts the whole run when it sees this.
var ErrAuthUnrecoverable = errors.New("authentication expired and token refresh failed")

// Endpoints are the resolved remote bases for one run.
type Endpoints struct {
	Base          string
	WalletDetails string
	ExtAPI        string
	Ping          string
}

// Policy carries the request timing knobs.
type Policy struct {
	Timeout        time.Duration
	RequestDelay   time.Duration
	RateLimitPause time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout:        30 * time.Second,
		RequestDelay:   3 * time.Second,
		RateLimitPause: 60 * time.Second,
	}
}

// Outcome is the normalized result of one remote call. Failures the remote
// service signals leniently (informational 4xx, 410 on the heartbeat route)
// come back as Success with the error body as Data.
type Outcome struct {
	Success bool
	Status  int
	Data    json.RawMessage
	ErrMsg  string
}

func (o Outcome) Decode(v any) error {
	if len(o.Data) == 0 {
		return errors.New("empty outcome data")
	}
	return json.Unmarshal(o.Data, v)
}

// RequestOptions tune a single Execute call. Retries is the number of
// additional attempts after the first.
type RequestOptions struct {
	Retries int
	IsAuth  bool
	Headers map[string]string
}

// Client talks to the remote service for exactly one account/device pair,
// optionally through an assigned proxy. It is owned by a single worker and
// never shared.
type Client struct {
	endpoints Endpoints
	http      *http.Client
	log       *zap.SugaredLogger
	base      map[string]string
	session   map[string]string
	address   string
	deviceID  int64
	token     string
	tokens    store.StringMap
	policy    Policy
	fresh     bool
}

func baseHeaders() map[string]string {
	return map[string]string{
		"Accept":          "application/json",
		"Content-Type":    "application/json",
		"Accept-Language": "en-US,en;q=0.9",
	}
}

// NewClient builds a client bound to one account unit. sessionHeaders are the
// per-session overrides (user agent, client hints) composed by the caller; the
// base header set stays immutable.
func NewClient(endpoints Endpoints, address string, deviceID int64, proxyURL string,
	sessionHeaders map[string]string, tokens store.StringMap, log *zap.SugaredLogger, policy Policy) (*Client, error) {

	transport := &http.Transport{}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxyURL, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	token, _ := tokens.Get(address)
	return &Client{
		endpoints: endpoints,
		http:      &http.Client{Transport: transport, Timeout: policy.Timeout},
		log:       log,
		base:      baseHeaders(),
		session:   sessionHeaders,
		address:   address,
		deviceID:  deviceID,
		token:     token,
		tokens:    tokens,
		policy:    policy,
	}, nil
}

// TokenRefreshed reports whether this run minted a fresh token. A fresh token
// forces re-activation because the remote side may have reset node state.
func (c *Client) TokenRefreshed() bool { return c.fresh }

// Execute performs one remote call with the status-code policy applied:
//
//	429                  pause, then spend a retry attempt
//	401 (non-auth)       force a token refresh, re-issue the call once
//	400                  non-retryable failure with the server message
//	410 on the ping route  soft success, remote means "already pinged"
//	other 4xx            success carrying the error body as data
//	network / 5xx        retry until the budget runs out, then failure
func (c *Client) Execute(ctx context.Context, target, method string, body any, opts RequestOptions) (Outcome, error) {
	refreshed := false
	attempt := 0
	for {
		status, raw, err := c.do(ctx, target, method, body, opts)
		if err == nil && status < 400 {
			metrics.RequestsTotal.WithLabelValues(metrics.ClassSuccess).Inc()
			return unwrap(status, raw), nil
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		errMsg := errorMessage(raw, err, status)

		switch {
		case status == http.StatusTooManyRequests:
			metrics.RequestsTotal.WithLabelValues(metrics.ClassRateLimited).Inc()
			c.log.Warnw("Rate limited, pausing", "url", target, "pause", c.policy.RateLimitPause)
			if serr := utils.Sleep(ctx, c.policy.RateLimitPause); serr != nil {
				return Outcome{}, serr
			}

		case status == http.StatusUnauthorized && !opts.IsAuth && !refreshed:
			metrics.RequestsTotal.WithLabelValues(metrics.ClassAuthExpired).Inc()
			token, terr := c.ValidToken(ctx, true)
			if terr != nil || token == "" {
				return Outcome{}, fmt.Errorf("%w: %v", ErrAuthUnrecoverable, terr)
			}
			// Re-issue the exact same call once with the new token. This does
			// not spend the retry budget.
			refreshed = true
			continue

		case status == http.StatusBadRequest:
			metrics.RequestsTotal.WithLabelValues(metrics.ClassClientRejected).Inc()
			c.log.Errorw("Request rejected, server contract may have changed", "url", target, "error", errMsg)
			return Outcome{Success: false, Status: status, ErrMsg: errMsg}, nil

		case status == http.StatusGone && strings.Contains(target, "/api/ping"):
			metrics.RequestsTotal.WithLabelValues(metrics.ClassSoftSignal).Inc()
			return Outcome{Success: true, Status: status, Data: rawMessage(errMsg)}, nil

		case status >= 400 && status < 500:
			metrics.RequestsTotal.WithLabelValues(metrics.ClassInformational).Inc()
			return Outcome{Success: true, Status: status, Data: rawMessage(errMsg)}, nil

		default:
			metrics.RequestsTotal.WithLabelValues(metrics.ClassTransient).Inc()
			c.log.Warnw("Request failed, retrying", "url", target, "error", errMsg, "attempt", attempt)
			if serr := utils.Sleep(ctx, c.policy.RequestDelay); serr != nil {
				return Outcome{}, serr
			}
		}

		attempt++
		if attempt > opts.Retries {
			return Outcome{Success: false, Status: status, ErrMsg: errMsg}, nil
		}
	}
}

func (c *Client) do(ctx context.Context, target, method string, body any, opts RequestOptions) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, reader)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range c.base {
		req.Header.Set(k, v)
	}
	for k, v := range c.session {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if !opts.IsAuth {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Token", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, raw, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.StatusCode, raw, nil
}

// unwrap handles the remote's double response shape: a payload nested under a
// data field is unwrapped to that field, anything else is returned as-is.
func unwrap(status int, raw []byte) Outcome {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		s := env.StatusCode
		if s == 0 {
			s = status
		}
		return Outcome{Success: true, Status: s, Data: env.Data}
	}
	return Outcome{Success: true, Status: status, Data: raw}
}

func errorMessage(raw []byte, err error, status int) string {
	var env envelope
	if len(raw) > 0 && json.Unmarshal(raw, &env) == nil {
		if m := strings.Trim(string(env.Message), `"`); m != "" && m != "null" {
			return m
		}
		if env.Error != "" {
			return env.Error
		}
	}
	if err != nil {
		return err.Error()
	}
	return http.StatusText(status)
}

func rawMessage(msg string) json.RawMessage {
	b, _ := json.Marshal(msg)
	return b
}

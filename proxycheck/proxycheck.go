package proxycheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const ipifyURL = "https://api.ipify.org?format=json"

// Checker resolves the public IP seen through each proxy. A proxy that keeps
// failing its probe gets a tripped breaker and is skipped for a while instead
// of being re-dialed on every cycle.
type Checker struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	timeout  time.Duration
	log      *zap.SugaredLogger
}

func NewChecker(timeout time.Duration, log *zap.SugaredLogger) *Checker {
	return &Checker{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		timeout:  timeout,
		log:      log,
	}
}

func (c *Checker) breaker(proxy string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[proxy]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "proxy-" + proxy,
		MaxRequests: 1,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.log.Infow("Proxy breaker state changed",
				"proxy", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	c.breakers[proxy] = cb
	return cb
}

// IP probes the proxy and returns the public IP it exits from.
func (c *Checker) IP(ctx context.Context, proxy string) (string, error) {
	result, err := c.breaker(proxy).Execute(func() (interface{}, error) {
		return c.probe(ctx, proxy)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Checker) probe(ctx context.Context, proxy string) (string, error) {
	u, err := url.Parse(proxy)
	if err != nil {
		return "", fmt.Errorf("parse proxy %q: %w", proxy, err)
	}
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		Timeout:   c.timeout,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ipifyURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("proxy probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proxy probe: status %d", resp.StatusCode)
	}
	var payload struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("proxy probe: %w", err)
	}
	return payload.IP, nil
}

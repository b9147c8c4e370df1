package naoris

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"naoris_farm/utils"
)

// ErrNoEndpoint means none of the candidate base URLs answered; startup must
// abort.
var ErrNoEndpoint = errors.New("no reachable endpoint")

// ResolveEndpoint probes the candidate base URLs in order and returns the
// first one that answers without a server error. The whole scan is retried
// with exponential backoff before giving up.
func ResolveEndpoint(ctx context.Context, candidates []string, timeout time.Duration, log *zap.SugaredLogger) (string, error) {
	client := &http.Client{Timeout: timeout}

	probe := func() (string, error) {
		for _, base := range candidates {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
			if err != nil {
				continue
			}
			resp, err := client.Do(req)
			if err != nil {
				log.Debugw("Endpoint probe failed", "base", base, "error", err)
				continue
			}
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return base, nil
			}
		}
		return "", ErrNoEndpoint
	}

	var endpoint string
	operation := func() error {
		found, err := probe()
		if err != nil {
			return err
		}
		endpoint = found
		return nil
	}
	retry := backoff.WithContext(backoff.WithMaxRetries(utils.NewExponentialBackoff(), 4), ctx)
	err := backoff.RetryNotify(operation, retry, func(err error, d time.Duration) {
		log.Warnw("No endpoint reachable, retrying", "error", err, "in", d)
	})
	if err != nil {
		return "", ErrNoEndpoint
	}
	log.Infow("Resolved API endpoint", "base", endpoint)
	return endpoint, nil
}

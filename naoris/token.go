package naoris

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"naoris_farm/metrics"
)

// TokenExpiry reads the expiry claim out of a bearer token without verifying
// the signature. The remote issues the token; only its validity window matters
// locally.
func TokenExpiry(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, errors.New("empty token")
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.New("token has no expiry claim")
	}
	return exp.Time, nil
}

// IsTokenExpired classifies a token; anything unparseable counts as expired.
func IsTokenExpired(token string) bool {
	expiry, err := TokenExpiry(token)
	if err != nil {
		return true
	}
	return !time.Now().Before(expiry)
}

// ValidToken returns a usable bearer token, re-authenticating when the held
// one is absent, expired, or forceNew is set. A newly issued token is written
// through to the token store immediately so sibling workers sharing the same
// address pick it up without waiting for the cycle flush.
func (c *Client) ValidToken(ctx context.Context, forceNew bool) (string, error) {
	if c.token != "" {
		expiry, err := TokenExpiry(c.token)
		expired := err != nil || !time.Now().Before(expiry)
		c.log.Infow("Token status", "expired", expired, "expires", expiry)
		if !forceNew && !expired {
			c.log.Infow("Using valid token")
			return c.token, nil
		}
	}

	c.fresh = true
	c.log.Warnw("No token or token expired, requesting a new one")
	res, err := c.Auth(ctx)
	if err != nil {
		return "", err
	}
	var data AuthData
	if res.Success {
		_ = res.Decode(&data)
	}
	if !res.Success || data.Token == "" {
		return "", fmt.Errorf("token grant failed: status %d: %s", res.Status, res.ErrMsg)
	}

	c.token = data.Token
	metrics.TokenRefreshes.Inc()
	if err := c.tokens.Set(c.address, data.Token); err != nil {
		c.log.Warnw("Failed to persist token", "error", err)
	}
	c.log.Infow("Obtained new token")
	return data.Token, nil
}

package naoris

import (
	"context"
	"net/http"
)

// Heartbeats carry the browser-extension origin the remote expects.
const pingOrigin = "chrome-extension://cpikalnagknmlfhnilhfelifgbollmmp"

// Auth binds the wallet address to a fresh bearer token.
func (c *Client) Auth(ctx context.Context) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.Base+"/auth/generateToken", http.MethodPost,
		map[string]string{"wallet_address": c.address},
		RequestOptions{Retries: 1, IsAuth: true})
}

// UserDetails fetches the testnet wallet details for this address.
func (c *Client) UserDetails(ctx context.Context) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.WalletDetails, http.MethodPost,
		map[string]string{"walletAddress": c.address},
		RequestOptions{Retries: 1})
}

// Balance fetches the wallet balance from the base API.
func (c *Client) Balance(ctx context.Context) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.Base+"/api/wallet-details", http.MethodGet, nil,
		RequestOptions{Retries: 1})
}

// HTBEvent reports the auxiliary device event alongside a heartbeat.
func (c *Client) HTBEvent(ctx context.Context) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.Base+"/api/htb-event", http.MethodPost,
		map[string]any{
			"inputData": map[string]any{
				"walletAddress": c.address,
				"deviceHash":    c.deviceID,
			},
		},
		RequestOptions{Retries: 1})
}

// Whitelist queries the remote whitelist for this wallet.
func (c *Client) Whitelist(ctx context.Context) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.ExtAPI+"/getWhitelist", http.MethodPost,
		map[string]string{"walletAddress": c.address},
		RequestOptions{Retries: 1})
}

// AddWhitelist registers the service's own domain on the wallet's whitelist.
func (c *Client) AddWhitelist(ctx context.Context) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.Base+"/api/addWhitelist", http.MethodPost,
		map[string]string{"walletAddress": c.address, "url": WhitelistDomain},
		RequestOptions{Retries: 1})
}

// ToggleActivate flips the activation flag for this device.
func (c *Client) ToggleActivate(ctx context.Context, state string) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.Base+"/api/toggle", http.MethodPost,
		map[string]any{
			"walletAddress": c.address,
			"state":         state,
			"deviceHash":    c.deviceID,
		},
		RequestOptions{Retries: 1})
}

// Ping sends one heartbeat. A 410 here means "already pinged" and is treated
// as success by Execute.
func (c *Client) Ping(ctx context.Context) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.Ping, http.MethodPost, map[string]any{},
		RequestOptions{Retries: 1, Headers: map[string]string{"Origin": pingOrigin}})
}

// ActiveNodes lists the currently active nodes.
func (c *Client) ActiveNodes(ctx context.Context) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.ExtAPI+"/active-nodes", http.MethodGet, nil,
		RequestOptions{Retries: 1})
}

// Tasks lists the available tasks for this wallet.
func (c *Client) Tasks(ctx context.Context) (Outcome, error) {
	return c.Execute(ctx, c.endpoints.Base+"/tasks", http.MethodGet, nil,
		RequestOptions{Retries: 1})
}

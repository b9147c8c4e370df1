package naoris

import "encoding/json"

// WhitelistDomain is the service's own domain expected in the remote whitelist.
const WhitelistDomain = "naorisprotocol.network"

// envelope is the remote service's response wrapper. Some routes nest their
// payload under data, others return it bare; Execute unwraps both shapes.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    json.RawMessage `json:"message"`
	Error      string          `json:"error"`
}

// AuthData is the payload of a successful token grant.
type AuthData struct {
	Token string `json:"token"`
}

// WalletDetails is the testnet wallet-details payload. Details stays nil when
// the remote answered without the expected shape.
type WalletDetails struct {
	Details *EarningDetails `json:"details"`
}

type EarningDetails struct {
	TotalEarnings       float64 `json:"totalEarnings"`
	TodayEarnings       float64 `json:"todayEarnings"`
	ActiveRatePerMinute float64 `json:"activeRatePerMinute"`
	TotalUptimeMinutes  float64 `json:"totalUptimeMinutes"`
}

// WalletBalance is the wallet-details route on the base API; the interesting
// number hides under message.
type WalletBalance struct {
	Message struct {
		TotalEarnings float64 `json:"totalEarnings"`
	} `json:"message"`
}

// WhitelistData is the payload of the whitelist query.
type WhitelistData struct {
	Whitelist []string `json:"whitelist"`
}

package models

import (
	"math"
	"time"
)

// MinRatePerMinute is the floor applied to the per-minute earning rate.
const MinRatePerMinute = 0.005

// LocalState is the persisted record for one session key. Earnings and uptime
// are monotonic: a merge never replaces them with a smaller value.
type LocalState struct {
	Address             string    `json:"address,omitempty"`
	DeviceID            int64     `json:"deviceHash,omitempty"`
	IsActive            bool      `json:"isActive"`
	IsWhitelisted       bool      `json:"isWhiteList"`
	TotalEarnings       float64   `json:"totalEarnings"`
	TodayEarnings       float64   `json:"todayEarnings"`
	ActiveRatePerMinute float64   `json:"activeRatePerMinute"`
	TotalUptimeMinutes  float64   `json:"totalUptimeMinutes"`
	LastPing            time.Time `json:"lastPing,omitempty"`
}

// Merge folds a newer delta into s. Monotonic numeric fields take the max of
// both sides; flags and identity fields are last-writer-wins.
func (s LocalState) Merge(delta LocalState) LocalState {
	out := delta
	out.TotalEarnings = Round4(math.Max(s.TotalEarnings, delta.TotalEarnings))
	out.TodayEarnings = Round4(math.Max(s.TodayEarnings, delta.TodayEarnings))
	out.TotalUptimeMinutes = Round4(math.Max(s.TotalUptimeMinutes, delta.TotalUptimeMinutes))
	out.ActiveRatePerMinute = math.Max(delta.ActiveRatePerMinute, MinRatePerMinute)
	if out.Address == "" {
		out.Address = s.Address
	}
	if out.DeviceID == 0 {
		out.DeviceID = s.DeviceID
	}
	if delta.LastPing.IsZero() {
		out.LastPing = s.LastPing
	}
	return out
}

// Round4 truncates noise past the tracked 4-decimal precision.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

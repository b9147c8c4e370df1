package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"naoris_farm/models"
	"naoris_farm/naoris"
	"naoris_farm/proxycheck"
	"naoris_farm/store"
	"naoris_farm/utils"
)

// State tracks the session's progress through its fixed step sequence.
type State int

const (
	StateStart State = iota
	StateTokenReady
	StateSynced
	StateWhitelisted
	StateActivated
	StateHeartbeating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateTokenReady:
		return "token_ready"
	case StateSynced:
		return "synced"
	case StateWhitelisted:
		return "whitelisted"
	case StateActivated:
		return "activated"
	case StateHeartbeating:
		return "heartbeating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config wires one runner to its account unit, proxy and shared stores.
type Config struct {
	Unit              models.AccountUnit
	Index             int
	RunID             string
	Endpoints         naoris.Endpoints
	Headers           map[string]string
	Tokens            store.StringMap
	Policy            naoris.Policy
	Proxy             string
	Checker           *proxycheck.Checker
	UseProxy          bool
	StartDelayMinSecs int
	StartDelayMaxSecs int
	Initial           models.LocalState
	Events            chan<- models.WorkerEvent
}

// Runner drives one account/device session through token, sync, whitelist,
// activation and heartbeat. It owns its LocalState copy exclusively and
// reports every mutation as a delta event the moment it happens, so partial
// progress survives a later failure.
type Runner struct {
	cfg    Config
	client *naoris.Client
	local  models.LocalState
	log    *zap.SugaredLogger
	state  State
}

func New(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		local: cfg.Initial,
		log: utils.SessionLogger(cfg.Index, cfg.Unit.Address, cfg.Unit.DeviceID, "").
			With("run_id", cfg.RunID),
		state: StateStart,
	}
}

// State reports the last state the runner reached.
func (r *Runner) State() State { return r.state }

// Run executes the session to completion. Only credential failures and
// context cancellation surface as errors; a failed sync just skips the cycle.
func (r *Runner) Run(ctx context.Context) error {
	r.state = StateStart

	ip := ""
	if r.cfg.UseProxy {
		var err error
		ip, err = r.cfg.Checker.IP(ctx, r.cfg.Proxy)
		if err != nil {
			r.log.Warnw("Cannot check proxy IP", "error", err)
			return fmt.Errorf("proxy check: %w", err)
		}
		r.log = utils.SessionLogger(r.cfg.Index, r.cfg.Unit.Address, r.cfg.Unit.DeviceID, ip).
			With("run_id", r.cfg.RunID)
		stagger := time.Duration(utils.RandomInRange(r.cfg.StartDelayMinSecs, r.cfg.StartDelayMaxSecs)) * time.Second
		r.log.Infow("Proxy resolved, staggering start", "stagger", stagger)
		if err := utils.Sleep(ctx, stagger); err != nil {
			return err
		}
	}

	client, err := naoris.NewClient(r.cfg.Endpoints, r.cfg.Unit.Address, r.cfg.Unit.DeviceID,
		r.proxyURL(), r.cfg.Headers, r.cfg.Tokens, r.log, r.cfg.Policy)
	if err != nil {
		r.state = StateFailed
		return err
	}
	r.client = client

	if _, err := client.ValidToken(ctx, false); err != nil {
		r.state = StateFailed
		return fmt.Errorf("no usable token: %w", err)
	}
	r.state = StateTokenReady

	synced, err := r.syncData(ctx)
	if err != nil {
		r.state = StateFailed
		return err
	}
	if !synced {
		r.log.Warnw("Cannot sync account data, skipping this cycle")
		return nil
	}
	r.state = StateSynced

	if err := r.whitelist(ctx); err != nil {
		r.state = StateFailed
		return err
	}
	r.state = StateWhitelisted
	if err := utils.Sleep(ctx, time.Second); err != nil {
		return err
	}

	if err := r.activate(ctx); err != nil {
		r.state = StateFailed
		return err
	}
	r.state = StateActivated
	if err := utils.Sleep(ctx, time.Second); err != nil {
		return err
	}

	r.state = StateHeartbeating
	if err := r.heartbeat(ctx); err != nil {
		r.state = StateFailed
		return err
	}
	r.state = StateDone
	return nil
}

func (r *Runner) proxyURL() string {
	if r.cfg.UseProxy {
		return r.cfg.Proxy
	}
	return ""
}

// emit reports the current LocalState as an incremental delta.
func (r *Runner) emit(ctx context.Context) {
	ev := models.DeltaEvent(r.cfg.Index, r.cfg.Unit.SessionKey(), r.local)
	select {
	case r.cfg.Events <- ev:
	case <-ctx.Done():
	}
}

// syncData reconciles local and remote earnings, taking the pairwise max so
// locally accumulated values never regress. No accrual is added here; growth
// only happens through heartbeat cycles.
func (r *Runner) syncData(ctx context.Context) (bool, error) {
	var details naoris.WalletDetails
	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.client.UserDetails(ctx)
		if err != nil {
			return false, err
		}
		if res.Success && res.Decode(&details) == nil && details.Details != nil {
			break
		}
		details.Details = nil
	}

	balanceRes, err := r.client.Balance(ctx)
	if err != nil {
		return false, err
	}
	var balance naoris.WalletBalance
	if balanceRes.Success {
		_ = balanceRes.Decode(&balance)
	}

	if details.Details == nil {
		return false, nil
	}
	d := details.Details

	points := math.Max(math.Max(d.TotalEarnings, balance.Message.TotalEarnings), 0)
	rpm := math.Max(d.ActiveRatePerMinute, models.MinRatePerMinute)
	r.local.TotalEarnings = models.Round4(math.Max(r.local.TotalEarnings, points))
	r.local.TodayEarnings = models.Round4(math.Max(math.Max(r.local.TodayEarnings, d.TodayEarnings), 0))
	r.local.TotalUptimeMinutes = models.Round4(math.Max(math.Max(r.local.TotalUptimeMinutes, d.TotalUptimeMinutes), 0))
	r.local.ActiveRatePerMinute = rpm
	r.local.Address = r.cfg.Unit.Address
	r.local.DeviceID = r.cfg.Unit.DeviceID

	r.log.Infow("Synced account data",
		"total_nodes", r.cfg.Unit.DeviceCount,
		"today_earnings", r.local.TodayEarnings,
		"total_earnings", r.local.TotalEarnings,
		"rate_per_minute", rpm,
		"uptime_minutes", r.local.TotalUptimeMinutes,
	)
	r.emit(ctx)
	return true, nil
}

// whitelist checks the remote whitelist once per session key lifetime. Once
// the local flag is set the check is never repeated.
func (r *Runner) whitelist(ctx context.Context) error {
	if r.local.IsWhitelisted {
		r.log.Debugw("Already whitelisted, skipping check")
		return nil
	}
	res, err := r.client.Whitelist(ctx)
	if err != nil {
		return err
	}
	if !res.Success {
		r.log.Warnw("Whitelist check failed", "status", res.Status, "error", res.ErrMsg)
		return nil
	}

	var data naoris.WhitelistData
	_ = res.Decode(&data)
	listed := false
	for _, domain := range data.Whitelist {
		if domain == naoris.WhitelistDomain {
			listed = true
			break
		}
	}
	if !listed {
		addRes, err := r.client.AddWhitelist(ctx)
		if err != nil {
			return err
		}
		r.log.Infow("Added service domain to whitelist", "status", addRes.Status, "success", addRes.Success)
	}

	r.local.IsWhitelisted = true
	r.emit(ctx)
	return nil
}

// activate toggles the device on. A freshly minted token forces re-activation
// even when the local flag says active: a new token implies the remote side
// may have reset node state.
func (r *Runner) activate(ctx context.Context) error {
	if r.local.IsActive && !r.client.TokenRefreshed() {
		r.log.Debugw("Node already active, skipping toggle")
		return nil
	}
	res, err := r.client.ToggleActivate(ctx, "ON")
	if err != nil {
		return err
	}
	if res.Success {
		r.log.Infow("Node activated", "status", res.Status)
	} else {
		r.log.Warnw("Activation call failed", "status", res.Status, "error", res.ErrMsg)
	}

	r.local.IsActive = true
	r.local.Address = r.cfg.Unit.Address
	r.local.DeviceID = r.cfg.Unit.DeviceID
	r.emit(ctx)
	return nil
}

// heartbeat sends one ping plus the auxiliary device event. A failed ping is
// only a warning; the session still completes.
func (r *Runner) heartbeat(ctx context.Context) error {
	pingRes, err := r.client.Ping(ctx)
	if err != nil {
		return err
	}
	htbRes, err := r.client.HTBEvent(ctx)
	if err != nil {
		return err
	}
	r.log.Infow("Device event reported", "success", htbRes.Success, "status", htbRes.Status)

	if pingRes.Success {
		r.local.LastPing = time.Now().UTC()
		r.log.Infow("Ping success", "status", pingRes.Status)
		r.emit(ctx)
	} else {
		r.log.Warnw("Ping failed", "status", pingRes.Status, "error", pingRes.ErrMsg)
	}
	return nil
}

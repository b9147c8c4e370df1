package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"naoris_farm/config"
	"naoris_farm/metrics"
	"naoris_farm/models"
	"naoris_farm/naoris"
	"naoris_farm/proxycheck"
	"naoris_farm/session"
	"naoris_farm/store"
	"naoris_farm/useragent"
	"naoris_farm/utils"
)

var (
	ErrNoAccounts       = errors.New("no accounts configured")
	ErrNotEnoughProxies = errors.New("not enough proxies for the configured device identities")
)

// Orchestrator fans sessions out across bounded batches of workers and folds
// their state deltas back into the shared snapshot. It is the only writer of
// the snapshot; workers communicate exclusively through events.
type Orchestrator struct {
	cfg       *config.Config
	units     []models.AccountUnit
	proxies   []string
	tokens    store.StringMap
	states    store.StateStore
	agents    *useragent.Allocator
	checker   *proxycheck.Checker
	endpoints naoris.Endpoints
	log       *zap.SugaredLogger
}

func New(cfg *config.Config, units []models.AccountUnit, proxies []string,
	tokens store.StringMap, states store.StateStore, agents *useragent.Allocator,
	checker *proxycheck.Checker, endpoints naoris.Endpoints, log *zap.SugaredLogger) *Orchestrator {

	return &Orchestrator{
		cfg:       cfg,
		units:     units,
		proxies:   proxies,
		tokens:    tokens,
		states:    states,
		agents:    agents,
		checker:   checker,
		endpoints: endpoints,
		log:       log,
	}
}

// Validate enforces the startup preconditions before any worker is spawned.
func (o *Orchestrator) Validate() error {
	if len(o.units) == 0 {
		return ErrNoAccounts
	}
	if o.cfg.Farm.UseProxy && len(o.units) > len(o.proxies) {
		return fmt.Errorf("%w: %d device identities, %d proxies",
			ErrNotEnoughProxies, len(o.units), len(o.proxies))
	}
	return nil
}

// Run loops forever: run one full cycle over every account unit, flush, sleep.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Validate(); err != nil {
		return err
	}
	for {
		if err := o.RunCycle(ctx); err != nil {
			return err
		}
		metrics.CyclesTotal.Inc()
		o.log.Infow("Cycle complete", "sleep", o.cfg.Farm.CycleSleep)
		if err := utils.Sleep(ctx, o.cfg.Farm.CycleSleep); err != nil {
			return err
		}
	}
}

// RunCycle loads the persisted stores fresh, runs all units in consecutive
// bounded batches and flushes the folded snapshot exactly once at the end.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if err := o.tokens.Reload(); err != nil {
		return fmt.Errorf("reload tokens: %w", err)
	}
	snapshot, err := o.states.Load()
	if err != nil {
		return fmt.Errorf("load state snapshot: %w", err)
	}

	batchCap := o.cfg.MaxConcurrency()
	var fatal error
	for start := 0; start < len(o.units); start += batchCap {
		end := min(start+batchCap, len(o.units))
		events := make(chan models.WorkerEvent, (end-start)*8)

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			// Snapshot reads happen here, before the worker exists; workers
			// only ever see their own copy.
			initial := snapshot[o.units[i].SessionKey()]
			wg.Add(1)
			go func(idx int, initial models.LocalState) {
				defer wg.Done()
				o.runWorker(ctx, idx, initial, events)
			}(i, initial)
		}
		go func() {
			wg.Wait()
			close(events)
		}()

		for ev := range events {
			switch ev.Kind {
			case models.EventStateDelta:
				snapshot[ev.Key] = snapshot[ev.Key].Merge(ev.State)
			case models.EventCompleted:
				metrics.SessionsCompleted.Inc()
			case models.EventFailed:
				metrics.SessionsFailed.Inc()
				o.log.Warnw("Worker failed", "account", ev.AccountIndex+1, "error", ev.Err)
				if errors.Is(ev.Err, naoris.ErrAuthUnrecoverable) {
					fatal = ev.Err
				}
			}
		}
		if fatal != nil {
			return fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if end < len(o.units) {
			if err := utils.Sleep(ctx, o.cfg.Farm.BatchPause); err != nil {
				return err
			}
		}
	}

	if err := o.states.Save(snapshot); err != nil {
		return fmt.Errorf("flush state snapshot: %w", err)
	}
	metrics.SnapshotFlushes.Inc()
	o.log.Infow("Snapshot flushed", "keys", len(snapshot))
	return nil
}

// runWorker executes one session under the per-worker deadline. Deltas the
// session emitted before a timeout are already on the channel and still count;
// the timed-out unit itself reports as failed.
func (o *Orchestrator) runWorker(ctx context.Context, idx int, initial models.LocalState, events chan<- models.WorkerEvent) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	wctx, cancel := context.WithTimeout(ctx, o.cfg.HTTP.WorkerTimeout)
	defer cancel()

	unit := o.units[idx]
	ua, err := o.agents.UserAgent(unit.Address)
	if err != nil {
		events <- models.FailedEvent(idx, fmt.Errorf("allocate user agent: %w", err))
		return
	}
	proxy := ""
	if o.cfg.Farm.UseProxy {
		proxy = o.proxies[idx]
	}

	runner := session.New(session.Config{
		Unit:      unit,
		Index:     idx,
		RunID:     uuid.NewString(),
		Endpoints: o.endpoints,
		Headers:   useragent.Headers(ua),
		Tokens:    o.tokens,
		Policy: naoris.Policy{
			Timeout:        o.cfg.HTTP.RequestTimeout,
			RequestDelay:   o.cfg.Farm.RequestDelay,
			RateLimitPause: o.cfg.HTTP.RateLimitPause,
		},
		Proxy:             proxy,
		Checker:           o.checker,
		UseProxy:          o.cfg.Farm.UseProxy,
		StartDelayMinSecs: o.cfg.Farm.StartDelayMinSecs,
		StartDelayMaxSecs: o.cfg.Farm.StartDelayMaxSecs,
		Initial:           initial,
		Events:            events,
	})

	if err := runner.Run(wctx); err != nil {
		if errors.Is(wctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("worker timed out after %s: %w", o.cfg.HTTP.WorkerTimeout, err)
		}
		events <- models.FailedEvent(idx, err)
		return
	}
	events <- models.CompletedEvent(idx)
}

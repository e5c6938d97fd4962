package alertcache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/fleetwatch/fleetwatch/internal/logger"
)

// ErrReloadTimeout is returned when the caller stops waiting for a reload.
// The reload itself keeps running to completion.
var ErrReloadTimeout = errors.New("agent reload timed out")

// agentReloadTarget is the part of Cache the reloader drives.
type agentReloadTarget interface {
	ReloadCachesForAgent(ctx context.Context, agentID uint) (Stats, error)
}

// ReloaderConfig tunes an AgentReloader.
type ReloaderConfig struct {
	// Timeout bounds how long Reload waits for the result. Zero waits forever.
	Timeout time.Duration
	// Debounce skips an unforced reload of an agent reloaded successfully within this window.
	Debounce time.Duration
	// Rate limits reloads per second across all agents. Zero disables pacing.
	Rate float64
}

// ReloadResult reports the outcome of an AgentReloader.Reload call.
type ReloadResult struct {
	Stats   Stats `json:"stats"`
	Skipped bool  `json:"skipped"`
	Shared  bool  `json:"shared"`
}

// AgentReloader is the agent connectivity trigger. Concurrent requests for the
// same agent share one reload.
type AgentReloader struct {
	target  agentReloadTarget
	group   singleflight.Group
	recent  *cache.Cache
	limiter *rate.Limiter
	cfg     ReloaderConfig
	log     logger.Logger
}

// NewAgentReloader creates a reloader driving target.
func NewAgentReloader(target agentReloadTarget, cfg ReloaderConfig, log logger.Logger) *AgentReloader {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	var recent *cache.Cache
	if cfg.Debounce > 0 {
		recent = cache.New(cfg.Debounce, 2*cfg.Debounce)
	}
	return &AgentReloader{
		target:  target,
		recent:  recent,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		log:     log.Module("agent-reload"),
	}
}

// Reload reloads the agent's conditions unless it was reloaded within the
// debounce window and force is false.
func (r *AgentReloader) Reload(ctx context.Context, agentID uint, force bool) (ReloadResult, error) {
	key := strconv.FormatUint(uint64(agentID), 10)
	if !force && r.recent != nil {
		if _, found := r.recent.Get(key); found {
			r.log.Debug("agent reload skipped", logger.Uint64("agent_id", uint64(agentID)))
			return ReloadResult{Skipped: true}, nil
		}
	}

	ch := r.group.DoChan(key, func() (any, error) {
		// detached: the reload must finish even if every waiter gives up
		bg := context.WithoutCancel(ctx)
		if err := r.limiter.Wait(bg); err != nil {
			return Stats{}, err
		}
		stats, err := r.target.ReloadCachesForAgent(bg, agentID)
		if err == nil && r.recent != nil {
			r.recent.SetDefault(key, time.Now())
		}
		return stats, err
	})

	var timeout <-chan time.Time
	if r.cfg.Timeout > 0 {
		timer := time.NewTimer(r.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-ch:
		stats, _ := res.Val.(Stats)
		if res.Err != nil {
			r.log.Error("agent reload failed", logger.Uint64("agent_id", uint64(agentID)), logger.Error(res.Err))
			return ReloadResult{Stats: stats, Shared: res.Shared}, res.Err
		}
		return ReloadResult{Stats: stats, Shared: res.Shared}, nil
	case <-timeout:
		r.log.Warn("agent reload still running after timeout",
			logger.Uint64("agent_id", uint64(agentID)),
			logger.Duration("timeout", r.cfg.Timeout))
		return ReloadResult{}, ErrReloadTimeout
	case <-ctx.Done():
		return ReloadResult{}, ctx.Err()
	}
}

// Forget clears the debounce entry of an agent, e.g. after it disconnects.
func (r *AgentReloader) Forget(agentID uint) {
	if r.recent != nil {
		r.recent.Delete(strconv.FormatUint(uint64(agentID), 10))
	}
}

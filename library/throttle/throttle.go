// Package throttle rate limits search requests per client and in total.
package throttle

import (
	"sync"

	"github.com/Laisky/errors/v2"
	"golang.org/x/time/rate"
)

// SearchThrottleCfg configuration for SearchThrottle
type SearchThrottleCfg struct {
	TotalNPerSec, TotalBurst           int
	EachClientNPerSec, EachClientBurst int
}

// SearchThrottle throttles search requests by client key with a shared
// global budget on top.
type SearchThrottle struct {
	sync.Mutex
	cfg             *SearchThrottleCfg
	totalLimiter    *rate.Limiter
	clientsLimiters *sync.Map
}

// NewSearchThrottle create new SearchThrottle
func NewSearchThrottle(cfg *SearchThrottleCfg) (t *SearchThrottle, err error) {
	if cfg.TotalNPerSec <= 0 || cfg.EachClientNPerSec <= 0 {
		return nil, errors.New("NPerSec must bigger than 0")
	}
	if cfg.TotalBurst < cfg.TotalNPerSec || cfg.EachClientBurst < cfg.EachClientNPerSec {
		return nil, errors.New("burst must bigger than NPerSec")
	}

	t = &SearchThrottle{
		cfg:             cfg,
		totalLimiter:    rate.NewLimiter(rate.Limit(cfg.TotalNPerSec), cfg.TotalBurst),
		clientsLimiters: new(sync.Map),
	}
	return t, nil
}

// Allow is allow client to search
func (t *SearchThrottle) Allow(clientKey string) (ok bool) {
	var (
		cli interface{}
		cl  *rate.Limiter
	)
	if cli, ok = t.clientsLimiters.Load(clientKey); !ok {
		t.Lock()
		if cli, ok = t.clientsLimiters.Load(clientKey); !ok {
			cl = rate.NewLimiter(rate.Limit(t.cfg.EachClientNPerSec), t.cfg.EachClientBurst)
			t.clientsLimiters.Store(clientKey, cl)
		} else {
			cl = cli.(*rate.Limiter)
		}
		t.Unlock()
	} else {
		cl = cli.(*rate.Limiter)
	}

	return cl.Allow() && t.totalLimiter.Allow()
}

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Preset names the spec defines (§4.10).
const (
	PresetAuth   = "auth"
	PresetAPI    = "api"
	PresetStatic = "static"
	PresetCost   = "cost"
)

// Preset is a fixed-window limit: at most Limit events (or cost units) per
// Window, evaluated per identity key.
type Preset struct {
	Limit  int
	Window time.Duration
	// CostBased marks presets where callers pass a cost greater than 1 via
	// CheckCost instead of the default single-unit Check.
	CostBased bool
}

// DefaultPresets are the spec §4.10 presets: auth endpoints (5 per 15min,
// counting successes too, to slow down credential stuffing), general API
// traffic (100 per 15min), static asset serving (1000 per 15min), and a
// cost-based bucket for operations priced in arbitrary units.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		PresetAuth:   {Limit: 5, Window: 15 * time.Minute},
		PresetAPI:    {Limit: 100, Window: 15 * time.Minute},
		PresetStatic: {Limit: 1000, Window: 15 * time.Minute},
		PresetCost:   {Limit: 1000, Window: 15 * time.Minute, CostBased: true},
	}
}

// CheckCost consumes `cost` units from a cost-based preset in one call,
// looping single-unit checks against the backend (acceptable since cost-based
// operations are rare relative to per-request checks).
func (l *Limiter) CheckCost(ctx context.Context, presetName, endpoint, apiKeyPrefix, userID, ip string, cost int) (Decision, error) {
	preset, ok := l.presets[presetName]
	if !ok {
		return Decision{}, fmt.Errorf("ratelimit: unknown preset %q", presetName)
	}
	key := Key(endpoint, apiKeyPrefix, userID, ip)
	var last Decision
	for i := 0; i < cost; i++ {
		d, err := l.backend.Allow(ctx, key, preset.Limit, preset.Window)
		if err != nil {
			return Decision{}, err
		}
		last = d
		if !d.Allowed {
			return d, nil
		}
	}
	return last, nil
}

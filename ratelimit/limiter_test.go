package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/ratelimit"
)

func TestKeyPrefersAPIKeyOverUserOverIP(t *testing.T) {
	assert.Equal(t, "auth:apikey:abcd1234", ratelimit.Key("auth", "abcd1234", "u1", "1.2.3.4"))
	assert.Equal(t, "auth:user:u1", ratelimit.Key("auth", "", "u1", "1.2.3.4"))
	assert.Equal(t, "auth:ip:1.2.3.4", ratelimit.Key("auth", "", "", "1.2.3.4"))
}

func TestMemoryBackendEnforcesLimit(t *testing.T) {
	backend := ratelimit.NewMemoryBackend()
	limiter := ratelimit.NewLimiter(backend, map[string]ratelimit.Preset{
		"tight": {Limit: 2, Window: time.Minute},
	})

	ctx := context.Background()
	d1, err := limiter.Check(ctx, "tight", "login", "", "u1", "")
	require.NoError(t, err)
	assert.True(t, d1.Allowed)

	d2, err := limiter.Check(ctx, "tight", "login", "", "u1", "")
	require.NoError(t, err)
	assert.True(t, d2.Allowed)

	d3, err := limiter.Check(ctx, "tight", "login", "", "u1", "")
	require.NoError(t, err)
	assert.False(t, d3.Allowed)
}

func TestMemoryBackendSeparatesKeys(t *testing.T) {
	backend := ratelimit.NewMemoryBackend()
	limiter := ratelimit.NewLimiter(backend, map[string]ratelimit.Preset{
		"tight": {Limit: 1, Window: time.Minute},
	})

	ctx := context.Background()
	d1, err := limiter.Check(ctx, "tight", "login", "", "u1", "")
	require.NoError(t, err)
	assert.True(t, d1.Allowed)

	d2, err := limiter.Check(ctx, "tight", "login", "", "u2", "")
	require.NoError(t, err)
	assert.True(t, d2.Allowed, "a different identity must not share the first user's budget")
}

func TestCheckUnknownPresetErrors(t *testing.T) {
	backend := ratelimit.NewMemoryBackend()
	limiter := ratelimit.NewLimiter(backend, ratelimit.DefaultPresets())

	_, err := limiter.Check(context.Background(), "does-not-exist", "login", "", "u1", "")
	assert.Error(t, err)
}

func TestCheckCostConsumesMultipleUnitsPerCall(t *testing.T) {
	backend := ratelimit.NewMemoryBackend()
	limiter := ratelimit.NewLimiter(backend, map[string]ratelimit.Preset{
		"cost": {Limit: 5, Window: time.Minute, CostBased: true},
	})

	ctx := context.Background()
	d, err := limiter.CheckCost(ctx, "cost", "render", "", "u1", "", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d2, err := limiter.CheckCost(ctx, "cost", "render", "", "u1", "", 3)
	require.NoError(t, err)
	assert.False(t, d2.Allowed, "6th unit in a 5-unit window must be rejected")
}

func TestDefaultPresetsMatchSpec(t *testing.T) {
	presets := ratelimit.DefaultPresets()
	assert.Equal(t, ratelimit.Preset{Limit: 5, Window: 15 * time.Minute}, presets[ratelimit.PresetAuth])
	assert.Equal(t, ratelimit.Preset{Limit: 100, Window: 15 * time.Minute}, presets[ratelimit.PresetAPI])
	assert.Equal(t, ratelimit.Preset{Limit: 1000, Window: 15 * time.Minute}, presets[ratelimit.PresetStatic])
}

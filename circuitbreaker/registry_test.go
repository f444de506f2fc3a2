package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	cfg.OpenTimeout = 50 * time.Millisecond
	r := NewRegistry(cfg)

	failing := func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	}

	_, err := r.Execute(context.Background(), "launch", failing)
	require.Error(t, err)
	assert.Equal(t, StateClosed, r.State("launch"))

	_, err = r.Execute(context.Background(), "launch", failing)
	require.Error(t, err)
	assert.Equal(t, StateOpen, r.State("launch"))

	_, err = r.Execute(context.Background(), "launch", failing)
	require.Error(t, err)
}

func TestRegistryHalfOpenRecovers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.OpenTimeout = 10 * time.Millisecond
	r := NewRegistry(cfg)

	_, err := r.Execute(context.Background(), "probe", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, r.State("probe"))

	time.Sleep(20 * time.Millisecond)

	v, err := r.Execute(context.Background(), "probe", func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, StateClosed, r.State("probe"))
}

func TestRegistryIndependentPerOperation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	r := NewRegistry(cfg)

	_, _ = r.Execute(context.Background(), "a", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	assert.Equal(t, StateOpen, r.State("a"))
	assert.Equal(t, StateClosed, r.State("b"))
}

package artifacts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/artifacts"
)

func TestShouldInlineRespectsConfiguredThreshold(t *testing.T) {
	store, err := artifacts.New(artifacts.Config{Bucket: "b", Region: "us-east-1", InlineThreshold: 1024})
	require.NoError(t, err)

	assert.True(t, store.ShouldInline(100))
	assert.False(t, store.ShouldInline(2048))
}

func TestShouldInlineDefaultsWhenUnset(t *testing.T) {
	store, err := artifacts.New(artifacts.Config{Bucket: "b", Region: "us-east-1"})
	require.NoError(t, err)

	assert.True(t, store.ShouldInline(1024))
	assert.False(t, store.ShouldInline(artifacts.DefaultInlineThreshold+1))
}

package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePoolConfigValid(t *testing.T) {
	cfg, err := ParsePoolConfig("2,256:16384:64,512:1024:32")
	require.NoError(t, err)
	require.Len(t, cfg.Subpools, 2)
	assert.Equal(t, SubpoolConfig{BufferSize: 256, NumBuffers: 16384, CacheSize: 64}, cfg.Subpools[0])
	assert.Equal(t, SubpoolConfig{BufferSize: 512, NumBuffers: 1024, CacheSize: 32}, cfg.Subpools[1])
}

func TestParsePoolConfigDefaultMatchesDefaultPoolConfig(t *testing.T) {
	cfg, err := ParsePoolConfig("4,256:16384:64,512:1024:32,1024:1024:16,2048:1024:8")
	require.NoError(t, err)
	assert.Equal(t, DefaultPoolConfig(), cfg)
}

func TestParsePoolConfigCountMismatch(t *testing.T) {
	_, err := ParsePoolConfig("2,256:16384:64")
	assert.Error(t, err)
}

func TestParsePoolConfigExceedsMax(t *testing.T) {
	_, err := ParsePoolConfig("5,1:1:1,1:1:1,1:1:1,1:1:1,1:1:1")
	assert.Error(t, err)
}

func TestParsePoolConfigMalformedCount(t *testing.T) {
	_, err := ParsePoolConfig("x,256:16384:64")
	assert.Error(t, err)
}

func TestParsePoolConfigMalformedSubpoolToken(t *testing.T) {
	_, err := ParsePoolConfig("1,256:16384")
	assert.Error(t, err)
}

func TestParsePoolConfigMalformedSubpoolField(t *testing.T) {
	_, err := ParsePoolConfig("1,abc:16384:64")
	assert.Error(t, err)
}

func TestParsePoolConfigEmpty(t *testing.T) {
	_, err := ParsePoolConfig("")
	assert.Error(t, err)
}

func TestParsePoolConfigZeroSubpools(t *testing.T) {
	cfg, err := ParsePoolConfig("0")
	require.NoError(t, err)
	assert.Empty(t, cfg.Subpools)
}

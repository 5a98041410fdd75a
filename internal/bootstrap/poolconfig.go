package bootstrap

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxSubpools bounds how many subpools a single pool config may
// declare, matching DefaultPoolConfig's own subpool count.
const MaxSubpools = 4

// SubpoolConfig is one <size>:<count>:<cache> token of a pool config.
type SubpoolConfig struct {
	BufferSize int
	NumBuffers int
	CacheSize  int
}

// PoolConfig is a full --default-pool-config/--messaging-pool-config
// value: <N>,<size>:<count>:<cache>{,<size>:<count>:<cache>}.
type PoolConfig struct {
	Subpools []SubpoolConfig
}

// DefaultPoolConfig returns the platform's built-in pool shape.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Subpools: []SubpoolConfig{
		{BufferSize: 256, NumBuffers: 16384, CacheSize: 64},
		{BufferSize: 512, NumBuffers: 1024, CacheSize: 32},
		{BufferSize: 1024, NumBuffers: 1024, CacheSize: 16},
		{BufferSize: 2048, NumBuffers: 1024, CacheSize: 8},
	}}
}

// DefaultMessagingPoolConfig returns the single-subpool shape the
// messaging (wire-frame) pool defaults to, kept distinct from the
// general default pool so the two can be tuned independently.
func DefaultMessagingPoolConfig() PoolConfig {
	return PoolConfig{Subpools: []SubpoolConfig{
		{BufferSize: 2048, NumBuffers: 4096, CacheSize: 64},
	}}
}

// ParsePoolConfig parses the pool-config mini-grammar
// <N>,<size>:<count>:<cache>{,...}. Any malformed token is an error the
// CLI layer treats as fatal; all numeric tokens are base 10.
func ParsePoolConfig(s string) (PoolConfig, error) {
	tokens := strings.Split(s, ",")
	if len(tokens) == 0 || tokens[0] == "" {
		return PoolConfig{}, fmt.Errorf("pool config: empty value")
	}

	count, err := strconv.ParseInt(tokens[0], 10, 64)
	if err != nil {
		return PoolConfig{}, fmt.Errorf("pool config: malformed subpool count %q: %w", tokens[0], err)
	}
	if count < 0 || count > MaxSubpools {
		return PoolConfig{}, fmt.Errorf("pool config: subpool count %d exceeds maximum %d", count, MaxSubpools)
	}
	if int64(len(tokens)-1) != count {
		return PoolConfig{}, fmt.Errorf("pool config: declared %d subpools, got %d", count, len(tokens)-1)
	}

	cfg := PoolConfig{Subpools: make([]SubpoolConfig, count)}
	for i := 0; i < int(count); i++ {
		sub, err := parseSubpoolConfig(tokens[i+1])
		if err != nil {
			return PoolConfig{}, err
		}
		cfg.Subpools[i] = sub
	}
	return cfg, nil
}

func parseSubpoolConfig(token string) (SubpoolConfig, error) {
	fields := strings.Split(token, ":")
	if len(fields) != 3 {
		return SubpoolConfig{}, fmt.Errorf("pool config: malformed subpool token %q, want size:count:cache", token)
	}
	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return SubpoolConfig{}, fmt.Errorf("pool config: malformed buffer size %q: %w", fields[0], err)
	}
	num, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return SubpoolConfig{}, fmt.Errorf("pool config: malformed buffer count %q: %w", fields[1], err)
	}
	cache, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return SubpoolConfig{}, fmt.Errorf("pool config: malformed cache size %q: %w", fields[2], err)
	}
	return SubpoolConfig{BufferSize: int(size), NumBuffers: int(num), CacheSize: int(cache)}, nil
}

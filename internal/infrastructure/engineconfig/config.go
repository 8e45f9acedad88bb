// Package engineconfig is the composition root's configuration surface:
// a flat struct with `kong` tags for CLI/env binding, the same
// plain-struct-plus-named-constructor texture the rest of this module uses
// for its "Options" types (spec.md's engine has no wire-protocol config of
// its own — everything here is process-level: budgets, cache sizing,
// logging).
package engineconfig

import (
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the engine's process-level configuration, bound from CLI flags
// and environment variables by the `cmd/graphd-query` composition root.
type Config struct {
	// RedisAddr, if set, backs the iterator-resource cache with a durable
	// tier (spec.md §5); left empty, the resource cache is purely
	// in-process and does not survive a restart.
	RedisAddr string `kong:"name='redis-addr',env='GRAPHD_REDIS_ADDR',help='redis address for the iterator-resource cache (optional)'"`
	RedisDB   int    `kong:"name='redis-db',env='GRAPHD_REDIS_DB',default='0',help='redis logical db number'"`

	// ResourceCacheBudget bounds the in-process tier of the iterator-resource
	// cache (spec.md §5 "LRU-bounded by bytes").
	ResourceCacheBudget datasize.ByteSize `kong:"name='resource-cache-budget',env='GRAPHD_RESOURCE_CACHE_BUDGET',default='64MB',help='byte budget for the in-process iterator-resource cache'"`

	// IsaCacheSerialCap bounds how large an ISA dedup cache may grow before
	// Freeze refuses to inline it into a cursor (spec.md §4.6).
	IsaCacheSerialCap datasize.ByteSize `kong:"name='isa-cache-serial-cap',env='GRAPHD_ISA_SERIAL_CAP',default='1MB',help='serialisability cap per ISA dedup cache'"`

	// TickBudget is the per-round-robin-turn cost budget handed to a
	// request before it must yield (spec.md §5 "per-tick budget").
	TickBudget int64 `kong:"name='tick-budget',env='GRAPHD_TICK_BUDGET',default='100000',help='cost units granted per scheduling turn'"`

	// SoftTimeout converts a request to a resumable cursor once its
	// cumulative cost crosses this; HardTimeout aborts it outright
	// (spec.md §5 "soft timeout ... hard timeout").
	SoftTimeout time.Duration `kong:"name='soft-timeout',env='GRAPHD_SOFT_TIMEOUT',default='500ms',help='cost-based soft timeout before converting to a cursor'"`
	HardTimeout time.Duration `kong:"name='hard-timeout',env='GRAPHD_HARD_TIMEOUT',default='5s',help='hard timeout before aborting a request with error'"`

	Verbose bool `kong:"name='verbose',short='v',env='GRAPHD_VERBOSE',help='enable debug-level logging'"`
}

// NewLogger builds the process logger the way the teacher's composition
// root does: a development encoder with the timestamp key stripped and
// stack traces disabled for readability, gated to info/debug by Verbose.
func (c Config) NewLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	if !c.Verbose {
		logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zap.Must(logConfig.Build())
}

package memory

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Config holds Orchestrator tuning.
type Config struct {
	// MaxCacheSize bounds the number of cached queries.
	MaxCacheSize int

	// CacheTTL is the maximum age of a cached query result.
	CacheTTL time.Duration

	// SweepInterval is how often expired cache entries are purged,
	// independent of reads and writes.
	SweepInterval time.Duration

	// StartupGrace is waited once before the first health check so a
	// backing service that is still starting isn't latched as down.
	StartupGrace time.Duration

	// CallTimeout bounds each embedding and store call.
	CallTimeout time.Duration

	// BatchDelay is the pause between writes in StoreMessages.
	BatchDelay time.Duration

	// DefaultLimit is used when a caller passes limit 0.
	DefaultLimit int

	// RecentPageSize is the page size used when listing the store.
	RecentPageSize int
}

// DefaultConfig returns the defaults used by New.
func DefaultConfig() Config {
	return Config{
		MaxCacheSize:   100,
		CacheTTL:       5 * time.Minute,
		SweepInterval:  time.Minute,
		StartupGrace:   time.Second,
		CallTimeout:    10 * time.Second,
		BatchDelay:     100 * time.Millisecond,
		DefaultLimit:   5,
		RecentPageSize: 200,
	}
}

// Validate rejects settings the cache and listing can't work with.
func (c Config) Validate() error {
	switch {
	case c.MaxCacheSize < 1:
		return goerr.New("MaxCacheSize must be positive", goerr.V("value", c.MaxCacheSize))
	case c.CacheTTL <= 0:
		return goerr.New("CacheTTL must be positive", goerr.V("value", c.CacheTTL))
	case c.SweepInterval <= 0:
		return goerr.New("SweepInterval must be positive", goerr.V("value", c.SweepInterval))
	case c.StartupGrace < 0:
		return goerr.New("StartupGrace must not be negative", goerr.V("value", c.StartupGrace))
	case c.CallTimeout <= 0:
		return goerr.New("CallTimeout must be positive", goerr.V("value", c.CallTimeout))
	case c.BatchDelay < 0:
		return goerr.New("BatchDelay must not be negative", goerr.V("value", c.BatchDelay))
	case c.DefaultLimit < 1:
		return goerr.New("DefaultLimit must be positive", goerr.V("value", c.DefaultLimit))
	case c.RecentPageSize < 1:
		return goerr.New("RecentPageSize must be positive", goerr.V("value", c.RecentPageSize))
	}
	return nil
}

// Package verify memoizes capability verification by source hash.
//
// Analysis is deterministic over the bytes, so a report computed once is
// valid forever. The cache also collapses concurrent verification of the
// same source into a single analyzer run.
package verify

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xordi/modguard/internal/analyzer"
	"github.com/xordi/modguard/internal/infrastructure/logging"
	"github.com/xordi/modguard/internal/shared/hash"
)

// Verifier produces a capability report for module source.
type Verifier interface {
	Analyze(src []byte) *analyzer.Report
}

// Cache memoizes reports by source hash. Safe for concurrent use.
type Cache struct {
	verifier Verifier
	group    singleflight.Group
	log      *logging.Logger

	mu      sync.RWMutex
	reports map[string]*analyzer.Report

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a report cache over the given verifier.
func NewCache(v Verifier, log *logging.Logger) *Cache {
	return &Cache{
		verifier: v,
		log:      log,
		reports:  make(map[string]*analyzer.Report),
	}
}

// GetOrVerify returns the report for the source, verifying at most once per
// hash no matter how many callers race on it.
func (c *Cache) GetOrVerify(sourceHash string, src []byte) *analyzer.Report {
	c.mu.RLock()
	report, ok := c.reports[sourceHash]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return report
	}

	v, _, shared := c.group.Do(sourceHash, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.reports[sourceHash]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		r := c.verifier.Analyze(src)
		c.mu.Lock()
		c.reports[sourceHash] = r
		c.mu.Unlock()

		c.log.Debug("capability report computed",
			zap.String("hash", hash.Short(sourceHash)),
			zap.Bool("can_access_external", r.CanAccessExternal),
		)
		return r, nil
	})
	if shared {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v.(*analyzer.Report)
}

// Get returns the cached report for a hash without computing anything.
func (c *Cache) Get(sourceHash string) (*analyzer.Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.reports[sourceHash]
	return r, ok
}

// Len returns the number of cached reports.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.reports)
}

// Clear drops all cached reports. It exists for test isolation only and
// must never be called on a request path.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.reports = make(map[string]*analyzer.Report)
	c.mu.Unlock()
}

// Hits returns the number of cache hits since start.
func (c *Cache) Hits() int64 { return c.hits.Load() }

// Misses returns the number of verifications performed.
func (c *Cache) Misses() int64 { return c.misses.Load() }

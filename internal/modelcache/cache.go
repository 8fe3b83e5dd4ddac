// Package modelcache loads per-tenant face indexes from disk and keeps them
// in memory until their files change or they are invalidated.
package modelcache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/observability/metrics"
)

// Load outcomes reported to metrics
const (
	resultHit      = "hit"
	resultLoad     = "load"
	resultReload   = "reload"
	resultNotFound = "not_found"
	resultError    = "error"
)

// Cache maps tenant ids to their loaded VectorIndex
type Cache struct {
	root    string
	mu      sync.Mutex
	entries map[uint]*VectorIndex
	group   singleflight.Group
	metrics *metrics.RecognitionMetrics
}

// New creates a cache reading artifacts below root
func New(root string, m *metrics.RecognitionMetrics) *Cache {
	return &Cache{
		root:    root,
		entries: make(map[uint]*VectorIndex),
		metrics: m,
	}
}

// TenantDir returns the artifact directory of a tenant
func TenantDir(root string, tenantID uint) string {
	return filepath.Join(root, fmt.Sprintf("tenant_%d", tenantID))
}

// Dir returns the artifact directory of a tenant under this cache's root
func (c *Cache) Dir(tenantID uint) string {
	return TenantDir(c.root, tenantID)
}

// Load returns the tenant's index, reading it from disk when it is not cached
// or when its files changed since the cached copy was loaded. Concurrent loads
// of one tenant share a single read. A tenant without artifacts yields a
// not-found error.
func (c *Cache) Load(tenantID uint) (*VectorIndex, error) {
	dir := c.Dir(tenantID)
	mtime, err := artifactTime(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.metrics.ModelLoad(resultNotFound)
			return nil, errors.New(err).
				Component("modelcache").
				Category(errors.CategoryNotFound).
				Context("tenant_id", tenantID).
				Context("dir", dir).
				Build()
		}
		c.metrics.ModelLoad(resultError)
		return nil, errors.New(err).
			Component("modelcache").
			Category(errors.CategoryFileIO).
			Context("tenant_id", tenantID).
			Build()
	}

	c.mu.Lock()
	cached, ok := c.entries[tenantID]
	c.mu.Unlock()
	if ok && cached.mtime.Equal(mtime) {
		c.metrics.ModelLoad(resultHit)
		return cached, nil
	}

	v, err, _ := c.group.Do(loadKey(tenantID, mtime), func() (any, error) {
		// another caller may have finished the same load since the check above
		c.mu.Lock()
		current, fresh := c.entries[tenantID]
		c.mu.Unlock()
		if fresh && current.mtime.Equal(mtime) {
			return current, nil
		}

		start := time.Now()
		idx, err := readIndex(dir)
		if err != nil {
			return nil, err
		}
		idx.mtime = mtime

		c.mu.Lock()
		// a load of newer files may have finished first
		if current, ok := c.entries[tenantID]; !ok || !current.mtime.After(mtime) {
			c.entries[tenantID] = idx
		}
		c.mu.Unlock()

		GetLogger().Info("face index loaded",
			logger.Uint64("tenant_id", uint64(tenantID)),
			logger.Int("rows", idx.Len()),
			logger.Int("dim", idx.Dim()),
			logger.Bool("reload", ok),
			logger.Duration("load_time", time.Since(start)))
		return idx, nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.metrics.ModelLoad(resultNotFound)
			return nil, errors.New(err).
				Component("modelcache").
				Category(errors.CategoryNotFound).
				Context("tenant_id", tenantID).
				Build()
		}
		c.metrics.ModelLoad(resultError)
		return nil, errors.New(err).
			Component("modelcache").
			Category(errors.CategoryModelLoad).
			Context("tenant_id", tenantID).
			Build()
	}

	if ok {
		c.metrics.ModelLoad(resultReload)
	} else {
		c.metrics.ModelLoad(resultLoad)
	}
	return v.(*VectorIndex), nil
}

// Invalidate drops the tenant's entry so the next Load reads from disk
func (c *Cache) Invalidate(tenantID uint) {
	c.mu.Lock()
	cached, ok := c.entries[tenantID]
	delete(c.entries, tenantID)
	c.mu.Unlock()
	if ok {
		c.group.Forget(loadKey(tenantID, cached.mtime))
	}

	if ok {
		GetLogger().Info("face index evicted", logger.Uint64("tenant_id", uint64(tenantID)))
	}
}

// Cached reports whether the tenant has an entry in memory
func (c *Cache) Cached(tenantID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[tenantID]
	return ok
}

// loadKey names one load of a tenant's artifacts as they were at mtime, so a
// caller that sees newer files never joins a load of older ones
func loadKey(tenantID uint, mtime time.Time) string {
	return strconv.FormatUint(uint64(tenantID), 10) + ":" + strconv.FormatInt(mtime.UnixNano(), 10)
}

// artifactTime is the newer modification time of the two artifact files
func artifactTime(dir string) (time.Time, error) {
	idx, err := os.Stat(filepath.Join(dir, IndexFileName))
	if err != nil {
		return time.Time{}, err
	}
	lbl, err := os.Stat(filepath.Join(dir, LabelsFileName))
	if err != nil {
		return time.Time{}, err
	}
	if lbl.ModTime().After(idx.ModTime()) {
		return lbl.ModTime(), nil
	}
	return idx.ModTime(), nil
}

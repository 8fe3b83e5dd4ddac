package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/omniface/omniface-go/internal/logger"
)

const (
	// DefaultProbeCount is how many device ids ListDevices tries
	DefaultProbeCount = 10
	// DefaultListCacheTTL is how long a probe result is reused
	DefaultListCacheTTL = 30 * time.Second

	deviceListKey = "devices"
)

// DeviceInfo describes an available capture device
type DeviceInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	InUse bool   `json:"in_use"`
}

// deviceCache holds the last probe result. Only one key is stored so no
// janitor goroutine is started.
type deviceCache struct {
	c *cache.Cache
}

func newDeviceCache(ttl time.Duration) *deviceCache {
	return &deviceCache{c: cache.New(ttl, 0)}
}

func (d *deviceCache) get() ([]DeviceInfo, bool) {
	v, ok := d.c.Get(deviceListKey)
	if !ok {
		return nil, false
	}
	list, ok := v.([]DeviceInfo)
	return list, ok
}

func (d *deviceCache) set(list []DeviceInfo) {
	d.c.Set(deviceListKey, list, cache.DefaultExpiration)
}

func (d *deviceCache) flush() {
	d.c.Flush()
}

// ListDevices probes device ids 0..n-1 and returns those that open. Cameras
// already running are reported without being reopened. The result is cached.
func (p *Pool) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	if list, ok := p.listCache.get(); ok {
		return list, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	list := make([]DeviceInfo, 0, p.probeCount)
	for id := range p.probeCount {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, running := p.sources[id]
		_, stopping := p.stopping[id]
		if running || stopping {
			list = append(list, DeviceInfo{ID: id, Name: deviceName(id), InUse: true})
			continue
		}

		dev, err := p.opener.Open(id)
		if err != nil {
			continue
		}
		if err := dev.Close(); err != nil {
			GetLogger().Debug("closing probed device failed",
				logger.Int("camera_id", id),
				logger.Error(err))
		}
		list = append(list, DeviceInfo{ID: id, Name: deviceName(id)})
	}

	p.listCache.set(list)
	GetLogger().Debug("camera devices probed", logger.Int("found", len(list)))
	return list, nil
}

// RefreshDevices drops the cached probe result
func (p *Pool) RefreshDevices() {
	p.listCache.flush()
}

func deviceName(id int) string {
	return fmt.Sprintf("Camera %d", id)
}

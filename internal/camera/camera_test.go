package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gocv.io/x/gocv"

	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDevice produces small solid frames at a fixed interval
type fakeDevice struct {
	id       int
	interval time.Duration
	closed   atomic.Bool
	reads    atomic.Int64
	failing  atomic.Bool
}

func (d *fakeDevice) Read(dst *gocv.Mat) bool {
	time.Sleep(d.interval)
	if d.failing.Load() {
		return false
	}
	n := d.reads.Add(1)
	v := float64(n % 255)
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 8, 8, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.CopyTo(dst)
	return true
}

func (d *fakeDevice) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("device %d closed twice", d.id)
	}
	return nil
}

// fakeOpener hands out fakeDevices and records every open
type fakeOpener struct {
	mu        sync.Mutex
	opens     map[int]int
	devices   map[int][]*fakeDevice
	available map[int]bool // nil means every id opens
	fail      error
	interval  time.Duration
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		opens:    make(map[int]int),
		devices:  make(map[int][]*fakeDevice),
		interval: 2 * time.Millisecond,
	}
}

func (o *fakeOpener) Open(id int) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return nil, o.fail
	}
	if o.available != nil && !o.available[id] {
		return nil, fmt.Errorf("no device %d", id)
	}
	o.opens[id]++
	d := &fakeDevice{id: id, interval: o.interval}
	o.devices[id] = append(o.devices[id], d)
	return d, nil
}

func (o *fakeOpener) openCount(id int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[id]
}

func (o *fakeOpener) last(id int) *fakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	ds := o.devices[id]
	if len(ds) == 0 {
		return nil
	}
	return ds[len(ds)-1]
}

func readFrame(t *testing.T, h *Handle) *Frame {
	t.Helper()
	var f *Frame
	require.Eventually(t, func() bool {
		var ok bool
		f, ok = h.Read()
		return ok
	}, 2*time.Second, 2*time.Millisecond)
	return f
}

func TestAcquireSharesOneDevice(t *testing.T) {
	opener := newFakeOpener()
	pool := NewPool(opener)
	defer pool.Close()

	ctx := context.Background()
	h1, err := pool.Acquire(ctx, 0)
	require.NoError(t, err)
	h2, err := pool.Acquire(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, opener.openCount(0))
	stats := pool.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Refs)

	f1 := readFrame(t, h1)
	f2 := readFrame(t, h2)
	defer f1.Close()
	defer f2.Close()
	assert.Equal(t, 0, f1.CameraID)
	assert.False(t, f1.Mat.Empty())
	assert.False(t, f2.Mat.Empty())

	dev := opener.last(0)
	pool.Release(h1)
	assert.False(t, dev.closed.Load(), "device stays open while a holder remains")
	assert.Len(t, pool.Stats(), 1)

	pool.Release(h2)
	assert.True(t, dev.closed.Load())
	assert.Empty(t, pool.Stats())

	// double release must not touch the refcount or close again
	pool.Release(h2)
	pool.Release(nil)
}

func TestReacquireAfterLastReleaseReopens(t *testing.T) {
	opener := newFakeOpener()
	pool := NewPool(opener)
	defer pool.Close()

	h, err := pool.Acquire(context.Background(), 3)
	require.NoError(t, err)
	pool.Release(h)

	h, err = pool.Acquire(context.Background(), 3)
	require.NoError(t, err)
	defer pool.Release(h)

	assert.Equal(t, 2, opener.openCount(3))
}

func TestConcurrentAcquireOpensOnce(t *testing.T) {
	opener := newFakeOpener()
	pool := NewPool(opener)
	defer pool.Close()

	const holders = 20
	handles := make([]*Handle, holders)
	var wg sync.WaitGroup
	for i := range holders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := pool.Acquire(context.Background(), 1)
			assert.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opener.openCount(1))
	require.Len(t, pool.Stats(), 1)
	assert.Equal(t, holders, pool.Stats()[0].Refs)

	for _, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Release(h)
		}()
	}
	wg.Wait()

	assert.Empty(t, pool.Stats())
	assert.True(t, opener.last(1).closed.Load())
}

func TestOpenFailureLeavesPoolUnchanged(t *testing.T) {
	opener := newFakeOpener()
	opener.fail = fmt.Errorf("permission denied")
	reg := prometheus.NewRegistry()
	m, err := metrics.NewCameraMetrics(reg)
	require.NoError(t, err)
	pool := NewPool(opener, WithMetrics(m))
	defer pool.Close()

	_, err = pool.Acquire(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCamera))
	assert.Empty(t, pool.Stats())

	opener.mu.Lock()
	opener.fail = nil
	opener.mu.Unlock()

	h, err := pool.Acquire(context.Background(), 0)
	require.NoError(t, err)
	pool.Release(h)
}

func TestSlotKeepsOnlyNewestFrame(t *testing.T) {
	opener := newFakeOpener()
	opener.interval = time.Millisecond
	pool := NewPool(opener)
	defer pool.Close()

	h, err := pool.Acquire(context.Background(), 0)
	require.NoError(t, err)
	defer pool.Release(h)

	require.Eventually(t, func() bool { return h.Dropped() >= 3 }, 2*time.Second, 2*time.Millisecond)

	f := readFrame(t, h)
	first := f.Seq
	f.Close()

	f = readFrame(t, h)
	defer f.Close()
	assert.Greater(t, f.Seq, first, "reads never go backwards")

	stats := pool.Stats()
	require.Len(t, stats, 1)
	assert.Positive(t, stats[0].Dropped)
	assert.Positive(t, stats[0].Captured)
}

func TestReadFailuresAreRetried(t *testing.T) {
	opener := newFakeOpener()
	pool := NewPool(opener, WithReadRetryDelay(time.Millisecond))
	defer pool.Close()

	h, err := pool.Acquire(context.Background(), 0)
	require.NoError(t, err)
	defer pool.Release(h)

	dev := opener.last(0)
	dev.failing.Store(true)
	time.Sleep(20 * time.Millisecond)
	for {
		f, ok := h.Read()
		if !ok {
			break
		}
		f.Close()
	}

	dev.failing.Store(false)
	f := readFrame(t, h)
	f.Close()
}

func TestAcquireAfterCloseAndCancelledContext(t *testing.T) {
	pool := NewPool(newFakeOpener())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Acquire(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)

	h, err := pool.Acquire(context.Background(), 0)
	require.NoError(t, err)

	pool.Close()
	_, err = pool.Acquire(context.Background(), 0)
	require.ErrorIs(t, err, ErrPoolClosed)

	// handles outlive the pool safely
	_, _ = h.Read()
	pool.Release(h)
	pool.Close()
}

func TestListDevices(t *testing.T) {
	opener := newFakeOpener()
	opener.available = map[int]bool{0: true, 2: true}
	pool := NewPool(opener, WithDeviceProbe(4, time.Minute))
	defer pool.Close()

	h, err := pool.Acquire(context.Background(), 2)
	require.NoError(t, err)
	defer pool.Release(h)

	list, err := pool.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []DeviceInfo{
		{ID: 0, Name: "Camera 0"},
		{ID: 2, Name: "Camera 2", InUse: true},
	}, list)
	assert.Equal(t, 1, opener.openCount(0))
	assert.Equal(t, 1, opener.openCount(2), "running camera is not reopened")
	assert.True(t, opener.last(0).closed.Load(), "probe closes the device")

	_, err = pool.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, opener.openCount(0), "second listing is served from cache")

	pool.RefreshDevices()
	_, err = pool.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, opener.openCount(0))
}

// stallDevice blocks in Read until unblock is closed, like an unplugged camera
type stallDevice struct {
	unblock chan struct{}
	reading chan struct{}
	closed  atomic.Bool
}

func (d *stallDevice) Read(*gocv.Mat) bool {
	select {
	case d.reading <- struct{}{}:
	default:
	}
	<-d.unblock
	return false
}

func (d *stallDevice) Close() error {
	d.closed.Store(true)
	return nil
}

// stallOpener stalls camera 0 and serves every other id with fakeDevices
type stallOpener struct {
	*fakeOpener
	mu      sync.Mutex
	stalled []*stallDevice
	unblock chan struct{}
}

func (o *stallOpener) Open(id int) (Device, error) {
	if id != 0 {
		return o.fakeOpener.Open(id)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, d := range o.stalled {
		if !d.closed.Load() {
			return nil, fmt.Errorf("camera 0 busy")
		}
	}
	d := &stallDevice{unblock: o.unblock, reading: make(chan struct{}, 1)}
	o.stalled = append(o.stalled, d)
	return d, nil
}

func TestStalledCameraDoesNotBlockOthers(t *testing.T) {
	opener := &stallOpener{fakeOpener: newFakeOpener(), unblock: make(chan struct{})}
	pool := NewPool(opener, WithReadRetryDelay(time.Millisecond))
	defer pool.Close()

	ctx := context.Background()
	h0, err := pool.Acquire(ctx, 0)
	require.NoError(t, err)

	opener.mu.Lock()
	first := opener.stalled[0]
	opener.mu.Unlock()
	select {
	case <-first.reading:
	case <-time.After(2 * time.Second):
		t.Fatal("capture goroutine never read")
	}

	released := make(chan struct{})
	go func() {
		pool.Release(h0)
		close(released)
	}()

	require.Eventually(t, func() bool {
		for _, st := range pool.Stats() {
			if st.ID == 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, time.Millisecond, "camera 0 never left the running set")

	// other cameras keep working while camera 0 is stuck in Read
	others := make(chan error, 1)
	go func() {
		h1, err := pool.Acquire(ctx, 1)
		if err == nil {
			_ = pool.Stats()
			pool.Release(h1)
		}
		others <- err
	}()
	select {
	case err := <-others:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("camera 1 blocked behind stalled camera 0")
	}

	// camera 0 itself waits for the old device to close
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	_, err = pool.Acquire(waitCtx, 0)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-released:
		t.Fatal("release finished while the device read was stalled")
	default:
	}

	close(opener.unblock)
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("release never finished")
	}
	assert.True(t, first.closed.Load())

	h0, err = pool.Acquire(ctx, 0)
	require.NoError(t, err, "camera reopens once the old device closed")
	pool.Release(h0)
}

package api

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/omniface/omniface-go/internal/api/auth"
	"github.com/omniface/omniface-go/internal/camera"
	"github.com/omniface/omniface-go/internal/logger"
)

// CamerasResponse lists the devices that can be streamed
type CamerasResponse struct {
	Cameras []camera.DeviceInfo `json:"cameras"`
}

// ListCameras handles GET /api/v1/cameras
func (c *Controller) ListCameras(ctx echo.Context) error {
	devices, err := c.Cameras.ListDevices(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "failed to list cameras", http.StatusInternalServerError)
	}
	if devices == nil {
		devices = []camera.DeviceInfo{}
	}
	return ctx.JSON(http.StatusOK, CamerasResponse{Cameras: devices})
}

// ReloadModel handles POST /api/v1/models/reload. Open streams of the tenant
// switch to the new artifacts on their next frame.
func (c *Controller) ReloadModel(ctx echo.Context) error {
	tenantID, ok := auth.TenantID(ctx)
	if !ok {
		return c.HandleError(ctx, nil, "missing tenant", http.StatusUnauthorized)
	}

	c.Engine.Reload(tenantID)
	GetLogger().Info("model reload requested",
		logger.Uint64("tenant_id", uint64(tenantID)),
		logger.String("ip", ctx.RealIP()))

	return ctx.JSON(http.StatusOK, map[string]any{
		"status":    "reloaded",
		"tenant_id": tenantID,
	})
}

// HealthResponse reports liveness and the shared resource counts
type HealthResponse struct {
	Status         string         `json:"status"`
	Version        string         `json:"version,omitempty"`
	Uptime         string         `json:"uptime"`
	UptimeSeconds  float64        `json:"uptime_seconds"`
	ActiveSessions int            `json:"active_sessions"`
	ActiveWorkers  int            `json:"active_workers"`
	Cameras        []camera.Stats `json:"cameras"`
	Resources      *ResourceInfo  `json:"resources,omitempty"`
	Timestamp      string         `json:"timestamp"`
}

// ResourceInfo is the host and process memory picture. Frame buffers and
// model interpreters make memory the resource that runs out first.
type ResourceInfo struct {
	MemoryTotal  uint64  `json:"memory_total"`
	MemoryUsage  float64 `json:"memory_usage_percent"`
	ProcessMemMB float64 `json:"process_memory_mb"`
	Goroutines   int     `json:"goroutines"`
}

// resourceInfo collects ResourceInfo, nil when the host refuses the query
func resourceInfo() *ResourceInfo {
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		GetLogger().Debug("memory statistics unavailable", logger.Error(err))
		return nil
	}

	info := &ResourceInfo{
		MemoryTotal: memInfo.Total,
		MemoryUsage: memInfo.UsedPercent,
		Goroutines:  runtime.NumGoroutine(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if procMem, err := proc.MemoryInfo(); err == nil && procMem != nil {
			info.ProcessMemMB = float64(procMem.RSS) / 1024 / 1024
		}
	}
	return info
}

// HealthCheck handles GET /api/v1/health
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	return ctx.JSON(http.StatusOK, HealthResponse{
		Status:         "healthy",
		Version:        c.version,
		Uptime:         uptime.Round(time.Second).String(),
		UptimeSeconds:  uptime.Seconds(),
		ActiveSessions: c.Engine.ActiveSessions(),
		ActiveWorkers:  c.Workers.Active(),
		Cameras:        c.Cameras.Stats(),
		Resources:      resourceInfo(),
		Timestamp:      time.Now().Format(time.RFC3339),
	})
}

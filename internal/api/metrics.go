package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemStatus is the response of GET /system/status.
type SystemStatus struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Conveyor      ConveyorMetrics `json:"conveyor"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Configured bool   `json:"configured"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
}

// ConveyorMetrics summarises slot occupancy and the device link.
type ConveyorMetrics struct {
	Slots           map[string]int `json:"slots"`
	ItemsOnConveyor int            `json:"items_on_conveyor"`
	LastUsedSlot    int            `json:"last_used_slot"`
	DeviceConnected bool           `json:"device_connected"`
	HangerReads     uint64         `json:"hanger_reads"`
	HangerFailures  uint64         `json:"hanger_failures"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	Driver          string `json:"driver"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.mqtt != nil {
		status.MQTT.Configured = true
		if err := s.mqtt.HealthCheck(r.Context()); err != nil {
			status.MQTT.Error = err.Error()
		} else {
			status.MQTT.Healthy = true
		}
	}

	if stats, err := s.slots.Stats(r.Context()); err == nil {
		status.Conveyor.Slots = map[string]int{
			"total":    stats.Total,
			"empty":    stats.Empty,
			"reserved": stats.Reserved,
			"occupied": stats.Occupied,
			"blocked":  stats.Blocked,
			"error":    stats.Error,
		}
		status.Conveyor.ItemsOnConveyor = stats.ItemsOnConveyor
		status.Conveyor.LastUsedSlot = stats.Cursor
	} else {
		s.logger.Warn("slot stats unavailable", "error", err)
	}
	if s.link != nil {
		status.Conveyor.DeviceConnected = s.link.IsConnected()
	}
	if s.sensor != nil {
		status.Conveyor.HangerReads, status.Conveyor.HangerFailures = s.sensor.Counters()
	}

	dbStats := s.db.Stats()
	status.Database = DatabaseMetrics{
		Driver:          s.db.Driver(),
		OpenConnections: dbStats.OpenConnections,
		InUse:           dbStats.InUse,
		Idle:            dbStats.Idle,
		WaitCount:       dbStats.WaitCount,
	}

	writeJSON(w, http.StatusOK, status)
}

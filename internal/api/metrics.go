package api

import (
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/annel0/voxel-core/internal/server"
)

// ServerMetrics - сведения о процессе для /api/status.
type ServerMetrics struct {
	StartTime time.Time
}

// NewServerMetrics создаёт экземпляр с текущим временем старта.
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{
		StartTime: time.Now(),
	}
}

// FormatUptime переводит длительность в вид "1d 2h 3m 4s".
func FormatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// GetUptime возвращает время работы API.
func (sm *ServerMetrics) GetUptime() string {
	return FormatUptime(time.Since(sm.StartTime))
}

// GetProcessUsage возвращает CPU процесса в процентах и RSS в мегабайтах.
// Если метрики процесса недоступны, CPU берётся системный.
func (sm *ServerMetrics) GetProcessUsage() (cpuPercent, rssMB float64) {
	cpuPercent, rssMB, err := server.ProcessUsage()
	if err == nil {
		return cpuPercent, rssMB
	}
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return cpuPercent, float64(m.Sys) / 1024 / 1024
}

// GetDetailedMemoryStats возвращает статистику памяти Go-рантайма.
func (sm *ServerMetrics) GetDetailedMemoryStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"alloc_mb":      float64(m.Alloc) / 1024 / 1024,
		"heap_alloc_mb": float64(m.HeapAlloc) / 1024 / 1024,
		"sys_mb":        float64(m.Sys) / 1024 / 1024,
		"num_gc":        m.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}
}

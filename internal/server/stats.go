package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/agent-trace/bridge/internal/demo"
	"github.com/agent-trace/bridge/internal/hub"
	"github.com/agent-trace/bridge/internal/sink"
)

type processStats struct {
	CPUPercent float64 `json:"cpuPercent"`
	MemoryRSS  uint64  `json:"memoryRssBytes"`
	Goroutines int     `json:"goroutines"`
}

type hostStats struct {
	MemoryTotal       uint64  `json:"memoryTotalBytes"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
}

type bridgeStats struct {
	UptimeSeconds float64           `json:"uptimeSeconds"`
	EventsWritten uint64            `json:"eventsWritten"`
	Hub           hub.Stats         `json:"hub"`
	Sinks         []sink.SinkStatus `json:"sinks"`
	Sessions      int               `json:"sessions"`
	Generator     *demo.Stats       `json:"generator,omitempty"`
	Process       processStats      `json:"process"`
	Host          hostStats         `json:"host"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := bridgeStats{
		UptimeSeconds: time.Since(s.started).Seconds(),
		EventsWritten: s.events.EventsWritten(),
		Hub:           s.hub.Stats(),
		Sinks:         s.events.Status(),
		Sessions:      s.store.Count(),
		Process:       s.processStats(),
		Host:          s.hostStats(),
	}
	if s.gen != nil {
		g := s.gen.Stats()
		stats.Generator = &g
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// processStats probes the bridge's own process. Best effort: a probe error
// leaves zeros rather than failing the endpoint.
func (s *Server) processStats() processStats {
	ps := processStats{Goroutines: runtime.NumGoroutine()}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.logger.Debug("process probe failed", zap.Error(err))
		return ps
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		ps.CPUPercent = cpu
	}
	if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
		ps.MemoryRSS = mi.RSS
	}
	return ps
}

func (s *Server) hostStats() hostStats {
	var hs hostStats
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		hs.MemoryTotal = vm.Total
		hs.MemoryUsedPercent = vm.UsedPercent
	}
	return hs
}

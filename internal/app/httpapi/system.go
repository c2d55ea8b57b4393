package httpapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

// ready reports whether the service can accept traffic. The application
// wires every dependency at construction, so readiness follows liveness;
// the endpoint exists so orchestration probes can be split.
func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

type systemStatusResponse struct {
	Status        string   `json:"status"`
	Uptime        string   `json:"uptime"`
	Goroutines    int      `json:"goroutines"`
	LiveSessions  int      `json:"live_sessions"`
	FeedListeners int      `json:"feed_listeners"`
	CPUPercent    *float64 `json:"cpu_percent,omitempty"`
	MemUsedMB     *uint64  `json:"mem_used_mb,omitempty"`
	MemPercent    *float64 `json:"mem_percent,omitempty"`
	HostUptime    string   `json:"host_uptime,omitempty"`
	Platform      string   `json:"platform,omitempty"`
}

func (h *handler) systemStatus(w http.ResponseWriter, r *http.Request) {
	resp := systemStatusResponse{
		Status:        "ok",
		Uptime:        time.Since(h.started).String(),
		Goroutines:    runtime.NumGoroutine(),
		LiveSessions:  h.app.Operations.Sessions().Len(),
		FeedListeners: h.app.Operations.Feed().Subscribers(),
	}

	// Host probes are best-effort; a restricted environment just omits them.
	if percents, err := cpu.PercentWithContext(r.Context(), 0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = &percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		used := vm.Used / (1 << 20)
		resp.MemUsedMB = &used
		resp.MemPercent = &vm.UsedPercent
	}
	if info, err := host.InfoWithContext(r.Context()); err == nil {
		resp.HostUptime = (time.Duration(info.Uptime) * time.Second).String()
		resp.Platform = info.Platform
	}

	writeJSON(w, http.StatusOK, resp)
}

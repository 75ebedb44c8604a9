package httpapi

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// healthResponse reports process liveness plus the host resource figures
// the teacher's system handlers surface, so an operator dashboard can
// flag a runner that's about to be starved of memory before it falls
// behind on its tick schedule.
type healthResponse struct {
	Status     string  `json:"status"`
	Universe   string  `json:"universe"`
	SessionID  string  `json:"session_id"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
}

// handleHealth reports liveness and host resource usage. Sampled over a
// short window so the call stays fast enough for a UI polling every
// couple of seconds.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := s.systemStats()

	coord := s.appState.Coordinator()
	resp := healthResponse{
		Status:     "healthy",
		Universe:   string(coord.Universe()),
		SessionID:  coord.Context().SessionID(),
		CPUPercent: cpuPct,
		MemPercent: memPct,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read CPU percentage")
		cpuPercent = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read memory statistics")
		return cpuAvg(cpuPercent), 0
	}
	return cpuAvg(cpuPercent), memStat.UsedPercent
}

func cpuAvg(percents []float64) float64 {
	if len(percents) == 0 {
		return 0
	}
	return percents[0]
}

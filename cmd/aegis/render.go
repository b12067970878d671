package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aegis-monitor/aegis/internal/display"
	"github.com/aegis-monitor/aegis/internal/models"
)

const barWidth = 30

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// render writes one dashboard frame for v.
func render(w io.Writer, v display.View, hist []models.HistoricalData) {
	fmt.Fprintf(w, "%s  %s\n\n", bold("Aegis"), phaseLabel(v))

	if v.Snapshot == nil {
		if v.IsLoading {
			fmt.Fprintln(w, "Loading system information...")
		} else {
			fmt.Fprintln(w, red("No data available"))
		}
		return
	}
	s := v.Snapshot

	fmt.Fprintf(w, "%-8s %s %5.1f%%", "CPU", bar(s.CPU.CurrentLoad), s.CPU.CurrentLoad)
	if s.CPU.Temperature != nil {
		fmt.Fprintf(w, "  %.0f°C", *s.CPU.Temperature)
	}
	fmt.Fprintf(w, "  %d cores / %d threads\n", s.CPU.Cores, s.CPU.Threads)

	fmt.Fprintf(w, "%-8s %s %5.1f%%  %s / %s\n", "Memory",
		bar(s.Memory.UsedPercentage), s.Memory.UsedPercentage,
		formatBytes(s.Memory.Used), formatBytes(s.Memory.Total))

	for i, g := range s.GPU {
		fmt.Fprintf(w, "%-8s %s %5.1f%%  %s", fmt.Sprintf("GPU%d", i), bar(g.UtilizationGPU), g.UtilizationGPU, g.Model)
		if g.TemperatureGPU != nil {
			fmt.Fprintf(w, "  %.0f°C", *g.TemperatureGPU)
		}
		fmt.Fprintln(w)
	}

	if d := s.Disk; d != nil {
		fmt.Fprintf(w, "%-8s %s %5.1f%%  %s / %s  %s\n", "Disk",
			bar(d.UsedPercentage), d.UsedPercentage,
			formatBytes(d.Used), formatBytes(d.Size), d.Mount)
	}

	if n := s.Network; n != nil {
		fmt.Fprintf(w, "%-8s %s  %s/s up  %s/s down  %s\n", "Network", n.Interface,
			formatBytes(uint64(n.TxSec)), formatBytes(uint64(n.RxSec)), n.OperState)
	}

	if len(s.TopProcesses) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Top processes"))
		for _, p := range s.TopProcesses {
			fmt.Fprintf(w, "  %7d  %-24s %10s  %5.1f%%\n", p.PID, truncate(p.Name, 24), formatBytes(p.Mem), p.MemPercentage)
		}
	}

	if len(hist) > 1 {
		cpu := make([]float64, len(hist))
		mem := make([]float64, len(hist))
		for i, h := range hist {
			cpu[i] = h.CPULoad
			mem[i] = h.MemoryUsed
		}
		fmt.Fprintf(w, "\n%-8s %s\n", "CPU", cyan(sparkline(cpu)))
		fmt.Fprintf(w, "%-8s %s\n", "Memory", cyan(sparkline(mem)))
	}

	fmt.Fprintf(w, "\nUpdated %s\n", time.UnixMilli(s.Timestamp).Format(time.TimeOnly))
}

func phaseLabel(v display.View) string {
	switch v.Phase {
	case display.PhaseLive:
		return green("live")
	case display.PhaseSynthetic:
		return yellow("synthetic data")
	case display.PhaseFailed:
		if v.Error != "" {
			return red("failed: " + v.Error)
		}
		return red("failed")
	}
	return v.Phase.String()
}

// bar renders a percentage as a fixed-width gauge colored by severity.
func bar(pct float64) string {
	pct = models.ClampPercent(pct)
	filled := int(pct / 100 * barWidth)
	gauge := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	switch {
	case pct >= 90:
		return red(gauge)
	case pct >= 70:
		return yellow(gauge)
	}
	return green(gauge)
}

// sparkline maps percentages to block glyphs.
func sparkline(values []float64) string {
	var sb strings.Builder
	top := len(sparkRunes) - 1
	for _, v := range values {
		i := int(models.ClampPercent(v) / 100 * float64(top))
		sb.WriteRune(sparkRunes[i])
	}
	return sb.String()
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

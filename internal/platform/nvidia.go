package platform

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aegis-monitor/aegis/internal/models"
)

// gpuQueryFields is the column order requested from nvidia-smi.
// Memory columns are reported in MiB because of the "nounits" format flag.
const gpuQueryFields = "name,memory.total,memory.used,memory.free,utilization.gpu,utilization.memory,temperature.gpu"

const mib = 1024 * 1024

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// NvidiaSMI implements Platform by querying the nvidia-smi tool.
type NvidiaSMI struct {
	run Runner
}

// NewNvidiaSMI creates an nvidia-smi platform. A nil runner executes the
// real binary.
func NewNvidiaSMI(run Runner) *NvidiaSMI {
	if run == nil {
		run = execRunner
	}
	return &NvidiaSMI{run: run}
}

// Name returns the platform identifier.
func (p *NvidiaSMI) Name() string { return "nvidia-smi" }

// GPUs queries every NVIDIA adapter. Returns an error if nvidia-smi is
// missing or its output cannot be parsed.
func (p *NvidiaSMI) GPUs(ctx context.Context) ([]models.GPUInfo, error) {
	out, err := p.run(ctx, "nvidia-smi",
		"--query-gpu="+gpuQueryFields, "--format=csv,noheader,nounits")
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseGPUCSV(out)
}

// parseGPUCSV converts nvidia-smi CSV rows into GPU records.
// Columns reported as "[N/A]" or "[Not Supported]" are treated as absent.
func parseGPUCSV(out []byte) ([]models.GPUInfo, error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = strings.Count(gpuQueryFields, ",") + 1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing nvidia-smi output: %w", err)
	}

	gpus := make([]models.GPUInfo, 0, len(rows))
	for _, row := range rows {
		g := models.GPUInfo{
			Model:             strings.TrimSpace(row[0]),
			Vendor:            "NVIDIA",
			MemoryTotal:       uint64(parseNumber(row[1]) * mib),
			MemoryUsed:        uint64(parseNumber(row[2]) * mib),
			MemoryFree:        uint64(parseNumber(row[3]) * mib),
			UtilizationGPU:    models.ClampPercent(parseNumber(row[4])),
			UtilizationMemory: models.ClampPercent(parseNumber(row[5])),
		}
		if t, ok := parseOptional(row[6]); ok {
			g.TemperatureGPU = &t
		}
		gpus = append(gpus, g)
	}
	return gpus, nil
}

func parseOptional(field string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func parseNumber(field string) float64 {
	v, _ := parseOptional(field)
	return v
}

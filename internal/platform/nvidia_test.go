package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRunner(out string, err error) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestNvidiaSMI_GPUs(t *testing.T) {
	out := "NVIDIA GeForce RTX 4080, 16376, 4096, 12280, 37, 21, 58\n" +
		"Tesla T4, 15360, 0, 15360, 0, 0, [N/A]\n"
	p := NewNvidiaSMI(fakeRunner(out, nil))

	gpus, err := p.GPUs(context.Background())
	require.NoError(t, err)
	require.Len(t, gpus, 2)

	first := gpus[0]
	assert.Equal(t, "NVIDIA GeForce RTX 4080", first.Model)
	assert.Equal(t, "NVIDIA", first.Vendor)
	assert.Equal(t, uint64(16376)*mib, first.MemoryTotal)
	assert.Equal(t, uint64(4096)*mib, first.MemoryUsed)
	assert.Equal(t, 37.0, first.UtilizationGPU)
	assert.Equal(t, 21.0, first.UtilizationMemory)
	require.NotNil(t, first.TemperatureGPU)
	assert.Equal(t, 58.0, *first.TemperatureGPU)

	assert.Nil(t, gpus[1].TemperatureGPU, "N/A temperature must be omitted")
}

func TestNvidiaSMI_MissingBinary(t *testing.T) {
	p := NewNvidiaSMI(fakeRunner("", errors.New("executable file not found")))

	_, err := p.GPUs(context.Background())
	assert.Error(t, err)
}

func TestNvidiaSMI_MalformedOutput(t *testing.T) {
	p := NewNvidiaSMI(fakeRunner("garbage line without columns\n", nil))
	_, err := p.GPUs(context.Background())
	assert.Error(t, err)
}

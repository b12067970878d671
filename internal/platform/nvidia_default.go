//go:build !darwin

package platform

// New creates the nvidia-smi backed platform used on Linux and Windows.
func New() Platform {
	return NewNvidiaSMI(nil)
}

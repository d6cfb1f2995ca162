package estimator

import (
	"fmt"

	"github.com/openfluke/loom/nn"
)

// GridBackend runs a loom grid network on the CPU.
type GridBackend struct {
	net    *nn.Network
	width  int
	height int
}

// NewGridBackend loads modelID from a loom bundle file. size is the square
// input resolution the network was exported for.
func NewGridBackend(path, modelID string, size int) (*GridBackend, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid input size %d", size)
	}
	net, err := nn.LoadModel(path, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s from %s: %w", modelID, path, err)
	}
	return &GridBackend{net: net, width: size, height: size}, nil
}

func (g *GridBackend) InputSize() (int, int) {
	return g.width, g.height
}

func (g *GridBackend) Forward(input, dst []float32) ([]float32, error) {
	out, _ := g.net.ForwardCPU(input)
	if len(out) == 0 {
		return nil, fmt.Errorf("network produced no output")
	}
	return append(dst[:0], out...), nil
}

func (g *GridBackend) Close() error {
	g.net.ReleaseGPU()
	return nil
}

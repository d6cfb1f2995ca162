package estimator

import (
	"path/filepath"
	"testing"

	"github.com/openfluke/loom/nn"
)

// saveIdentityModel writes a one-layer loom bundle whose forward pass keeps
// non-negative inputs unchanged.
func saveIdentityModel(t *testing.T, dir, name, modelID string) string {
	t.Helper()
	net := nn.NewNetwork(1, 1, 1, 1)
	net.SetLayer(0, 0, 0, nn.LayerConfig{Type: nn.LayerDense, Activation: nn.ActivationLeakyReLU})

	path := filepath.Join(dir, name)
	if err := net.SaveModel(path, modelID); err != nil {
		t.Fatalf("SaveModel failed: %v", err)
	}
	return path
}

func TestGridBackend_Forward(t *testing.T) {
	path := saveIdentityModel(t, t.TempDir(), "depth.json", "depth")

	g, err := NewGridBackend(path, "depth", 4)
	if err != nil {
		t.Fatalf("NewGridBackend failed: %v", err)
	}
	defer g.Close()

	if w, h := g.InputSize(); w != 4 || h != 4 {
		t.Errorf("Expected 4x4 input, got %dx%d", w, h)
	}

	input := ramp(48, 0, 1)
	out, err := g.Forward(input, nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if len(out) != len(input) {
		t.Fatalf("Expected %d outputs, got %d", len(input), len(out))
	}
	for i := range out {
		if out[i] != input[i] {
			t.Fatalf("Output %d: expected %v, got %v", i, input[i], out[i])
		}
	}
}

func TestGridBackend_DrivesAdapter(t *testing.T) {
	path := saveIdentityModel(t, t.TempDir(), "depth.json", "depth")
	g, err := NewGridBackend(path, "depth", 4)
	if err != nil {
		t.Fatalf("NewGridBackend failed: %v", err)
	}
	a := NewAdapter(g)
	defer a.Close()

	color := solidRGBA(8, 8, 200, 100, 50)
	out, stats, err := a.Infer(color, 8, 8, true)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(out) != len(color) {
		t.Errorf("Expected %d bytes, got %d", len(color), len(out))
	}
	if stats.Max <= stats.Min {
		t.Errorf("Expected a non-empty depth range, got %+v", stats)
	}
}

func TestNewGridBackend_Errors(t *testing.T) {
	dir := t.TempDir()
	path := saveIdentityModel(t, dir, "depth.json", "depth")

	if _, err := NewGridBackend(filepath.Join(dir, "missing.json"), "depth", 4); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := NewGridBackend(path, "other", 4); err == nil {
		t.Error("Expected error for unknown model id")
	}
	if _, err := NewGridBackend(path, "depth", 0); err == nil {
		t.Error("Expected error for zero input size")
	}
}

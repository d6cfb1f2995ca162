package estimator

import (
	"fmt"
	"os"
	"unsafe"

	"gocv.io/x/gocv"
)

type netTarget struct {
	backend gocv.NetBackendType
	target  gocv.NetTargetType
}

// Accepted NET_TARGET values.
var netTargets = map[string]netTarget{
	"cpu":         {gocv.NetBackendDefault, gocv.NetTargetCPU},
	"opencl":      {gocv.NetBackendOpenCV, gocv.NetTargetFP32},
	"opencl-fp16": {gocv.NetBackendOpenCV, gocv.NetTargetFP16},
	"cuda":        {gocv.NetBackendCUDA, gocv.NetTargetCUDA},
	"cuda-fp16":   {gocv.NetBackendCUDA, gocv.NetTargetCUDAFP16},
	"vpu":         {gocv.NetBackendOpenVINO, gocv.NetTargetVPU},
}

// NetBackend runs an ONNX depth network through the OpenCV DNN module.
type NetBackend struct {
	net    gocv.Net
	width  int
	height int
}

// NewNetBackend opens an ONNX model and applies the acceleration hint.
func NewNetBackend(path string, size int, target string) (*NetBackend, error) {
	t, ok := netTargets[target]
	if !ok {
		return nil, fmt.Errorf("unknown net target %q", target)
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid input size %d", size)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", path)
	}

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", path)
	}
	errBackend := net.SetPreferableBackend(t.backend)
	errTarget := net.SetPreferableTarget(t.target)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target %q", target)
	}

	return &NetBackend{net: net, width: size, height: size}, nil
}

func (n *NetBackend) InputSize() (int, int) {
	return n.width, n.height
}

func (n *NetBackend) Forward(input, dst []float32) ([]float32, error) {
	if len(input) != 3*n.width*n.height {
		return nil, fmt.Errorf("input holds %d values, want %d", len(input), 3*n.width*n.height)
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&input[0])), len(input)*4)
	blob, err := gocv.NewMatWithSizesFromBytes([]int{1, 3, n.height, n.width}, gocv.MatTypeCV32F, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to build input blob: %w", err)
	}
	defer blob.Close()

	n.net.SetInput(blob, "")
	output := n.net.Forward("")
	defer output.Close()
	if output.Empty() {
		return nil, fmt.Errorf("network produced no output")
	}

	values, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	return append(dst[:0], values...), nil
}

func (n *NetBackend) Close() error {
	return n.net.Close()
}

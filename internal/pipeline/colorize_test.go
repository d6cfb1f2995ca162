package pipeline

import (
	"bytes"
	"testing"
)

func TestColorize_GrayIdentity(t *testing.T) {
	field := []float32{0, 0.5, 1, 0.25}
	dst := make([]byte, 2*2*4)

	if err := Colorize(field, 2, 2, dst, 2, 2, ColorGray); err != nil {
		t.Fatalf("Colorize failed: %v", err)
	}

	expected := []byte{
		0, 0, 0, 255, 128, 128, 128, 255,
		255, 255, 255, 255, 64, 64, 64, 255,
	}
	if !bytes.Equal(dst, expected) {
		t.Errorf("Expected %v, got %v", expected, dst)
	}
}

func TestColorize_NearestNeighborUpsample(t *testing.T) {
	field := []float32{0, 1}
	dst := make([]byte, 4*2*4)

	if err := Colorize(field, 2, 1, dst, 4, 2, ColorGray); err != nil {
		t.Fatalf("Colorize failed: %v", err)
	}

	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			want := byte(0)
			if x >= 2 {
				want = 255
			}
			if got := dst[(y*4+x)*4]; got != want {
				t.Errorf("Pixel (%d,%d): expected %d, got %d", x, y, want, got)
			}
		}
	}
}

func TestColorize_AlphaAlwaysOpaque(t *testing.T) {
	field := make([]float32, 16)
	for i := range field {
		field[i] = float32(i) / 15
	}
	field[3] = -2
	field[7] = 9

	for _, mode := range []ColorMode{ColorGray, ColorTurbo} {
		t.Run(mode.String(), func(t *testing.T) {
			dst := make([]byte, 7*5*4)
			if err := Colorize(field, 4, 4, dst, 7, 5, mode); err != nil {
				t.Fatalf("Colorize failed: %v", err)
			}
			for i := 3; i < len(dst); i += 4 {
				if dst[i] != 255 {
					t.Fatalf("Pixel %d: expected alpha 255, got %d", i/4, dst[i])
				}
			}
		})
	}
}

func TestColorize_TurboEndpoints(t *testing.T) {
	dst := make([]byte, 4)

	if err := Colorize([]float32{0}, 1, 1, dst, 1, 1, ColorTurbo); err != nil {
		t.Fatalf("Colorize failed: %v", err)
	}
	if !bytes.Equal(dst, []byte{35, 23, 27, 255}) {
		t.Errorf("Expected dark turbo base color, got %v", dst)
	}

	// Out-of-range input clamps to the endpoints.
	below := make([]byte, 4)
	if err := Colorize([]float32{-1}, 1, 1, below, 1, 1, ColorTurbo); err != nil {
		t.Fatalf("Colorize failed: %v", err)
	}
	if !bytes.Equal(below, dst) {
		t.Errorf("Expected %v for clamped input, got %v", dst, below)
	}
}

func TestColorize_RejectsBadSizes(t *testing.T) {
	if err := Colorize(make([]float32, 3), 2, 2, make([]byte, 16), 2, 2, ColorGray); err == nil {
		t.Error("Expected error for short field")
	}
	if err := Colorize(make([]float32, 4), 2, 2, make([]byte, 15), 2, 2, ColorGray); err == nil {
		t.Error("Expected error for short destination")
	}
	if err := Colorize(make([]float32, 4), 0, 2, make([]byte, 16), 2, 2, ColorGray); err == nil {
		t.Error("Expected error for zero field width")
	}
}

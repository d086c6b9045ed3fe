package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePNG(t *testing.T, path string, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func writeFramePair(t *testing.T, dir, camera string, idx int) {
	t.Helper()
	writePNG(t, filepath.Join(dir, fmt.Sprintf("%s_normals_0_%d.png", camera, idx)), color.NRGBA{0, 0, 255, 255})
	writePNG(t, filepath.Join(dir, fmt.Sprintf("%s_semantic_segmentation_0_%d.png", camera, idx)), color.NRGBA{200, 100, 50, 255})
}

func TestValidateFrames(t *testing.T) {
	dir := t.TempDir()
	for idx := 0; idx < 3; idx++ {
		writeFramePair(t, dir, "cam", idx)
	}

	if err := ValidateFrames(dir, 0, 3, "cam"); err != nil {
		t.Errorf("expected valid frame range, got %v", err)
	}
}

func TestValidateFrames_NegativeStart(t *testing.T) {
	err := ValidateFrames(t.TempDir(), -1, 3, "cam")
	if err == nil || !strings.Contains(err.Error(), "non-negative") {
		t.Errorf("expected negative start error, got %v", err)
	}
}

func TestValidateFrames_NonPositiveCount(t *testing.T) {
	if err := ValidateFrames(t.TempDir(), 0, 0, "cam"); err == nil {
		t.Error("expected an error for zero frames")
	}
}

func TestValidateFrames_MissingFrame(t *testing.T) {
	dir := t.TempDir()
	writeFramePair(t, dir, "cam", 0)
	// Frame 1 is absent.
	err := ValidateFrames(dir, 0, 2, "cam")
	if err == nil || !strings.Contains(err.Error(), "frame index 1") {
		t.Errorf("expected missing frame 1 error, got %v", err)
	}
}

func TestShadeFrame_FullLight(t *testing.T) {
	seg := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	seg.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 255})
	normals := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	// Normal (0,0,1) facing the light exactly: shade factor 1.0.
	normals.SetNRGBA(0, 0, color.NRGBA{0, 0, 255, 255})

	out := shadeFrame(seg, normals, [3]float64{0, 0, 1})
	got := out.NRGBAAt(0, 0)
	if got.R != 200 || got.G != 100 || got.B != 50 || got.A != 255 {
		t.Errorf("expected unshaded color under full light, got %+v", got)
	}
}

func TestShadeFrame_HalfLight(t *testing.T) {
	seg := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	seg.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 255})
	normals := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	// Zero normal: shade factor is the 0.5 ambient floor.
	normals.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})

	out := shadeFrame(seg, normals, [3]float64{0, 0, 1})
	got := out.NRGBAAt(0, 0)
	if got.R != 100 || got.G != 50 || got.B != 25 {
		t.Errorf("expected half-shaded color, got %+v", got)
	}
	if got.A != 255 {
		t.Errorf("alpha must be opaque, got %d", got.A)
	}
}

func TestLoadNRGBA_ConvertsColorModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gray.png")
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(0, 0, color.Gray{Y: 128})
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	nrgba, err := loadNRGBA(path)
	if err != nil {
		t.Fatalf("loadNRGBA: %v", err)
	}
	if got := nrgba.NRGBAAt(0, 0); got.R != 128 || got.G != 128 || got.B != 128 {
		t.Errorf("expected gray converted to NRGBA, got %+v", got)
	}
}

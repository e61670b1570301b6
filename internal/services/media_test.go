package services

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/objstore"
)

func writeTestImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create test image: %v", err)
	}
	defer f.Close()
	if strings.HasSuffix(name, ".png") {
		if err := png.Encode(f, img); err != nil {
			t.Fatalf("encode png: %v", err)
		}
		return path
	}
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return path
}

func decodeDims(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode config %s: %v", path, err)
	}
	return cfg.Width, cfg.Height
}

func TestProcessRendersAllDerivatives(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, "source.jpg", 2400, 1600)
	outDir := filepath.Join(dir, "out")

	p := NewMediaProcessor(logger.NewNop())
	res, err := p.Process(context.Background(), src, outDir, "imp-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.Width != 2400 || res.Height != 1600 || res.Format != "jpeg" {
		t.Fatalf("metadata = %dx%d %s", res.Width, res.Height, res.Format)
	}
	if len(res.Derivatives) != 5 {
		t.Fatalf("derivatives = %d, want 5", len(res.Derivatives))
	}

	wantDims := map[string][2]int{
		objstore.DerivativeOriginal:  {1600, 1067},
		objstore.DerivativeThumbnail: {320, 320},
		objstore.DerivativeCrop3x2:   {1200, 800},
		objstore.DerivativeCrop4x3:   {1200, 900},
		objstore.DerivativeCrop16x9:  {1200, 675},
	}
	for name, want := range wantDims {
		d, ok := res.Derivatives[name]
		if !ok {
			t.Fatalf("missing derivative %s", name)
		}
		if d.Size <= 0 {
			t.Fatalf("%s size = %d", name, d.Size)
		}
		wantFile := "imp-1-" + name + ".jpg"
		if filepath.Base(d.Path) != wantFile {
			t.Fatalf("%s filename = %s, want %s", name, filepath.Base(d.Path), wantFile)
		}
		w, h := decodeDims(t, d.Path)
		if w != want[0] || h != want[1] {
			t.Fatalf("%s = %dx%d, want %dx%d", name, w, h, want[0], want[1])
		}
	}
}

func TestProcessDoesNotUpscaleSmallOriginals(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, "small.jpg", 800, 600)

	p := NewMediaProcessor(logger.NewNop())
	res, err := p.Process(context.Background(), src, filepath.Join(dir, "out"), "imp-2")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	w, h := decodeDims(t, res.Derivatives[objstore.DerivativeOriginal].Path)
	if w != 800 || h != 600 {
		t.Fatalf("original derivative = %dx%d, want source dimensions", w, h)
	}
	// Crops still cover their fixed boxes even from a small source.
	w, h = decodeDims(t, res.Derivatives[objstore.DerivativeCrop3x2].Path)
	if w != 1200 || h != 800 {
		t.Fatalf("crop3x2 = %dx%d, want 1200x800", w, h)
	}
}

func TestProcessKeepsPNGEncoding(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, "source.png", 1000, 1000)

	p := NewMediaProcessor(logger.NewNop())
	res, err := p.Process(context.Background(), src, filepath.Join(dir, "out"), "imp-3")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Format != "png" {
		t.Fatalf("format = %q, want png", res.Format)
	}
	for name, d := range res.Derivatives {
		if !strings.HasSuffix(d.Path, ".png") {
			t.Fatalf("%s path = %s, want .png extension", name, d.Path)
		}
	}
}

func TestProcessRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "not-an-image.jpg")
	if err := os.WriteFile(src, []byte("plain text"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := NewMediaProcessor(logger.NewNop())
	if _, err := p.Process(context.Background(), src, filepath.Join(dir, "out"), "imp-4"); err == nil {
		t.Fatal("expected decode error for non-image input")
	}
}

package overlays

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestLoadLogoBoundsLargeImages(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.png")
	large := filepath.Join(dir, "large.png")
	writePNG(t, small, 64, 32)
	writePNG(t, large, 2048, 1024)

	img, err := LoadLogo(small)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Errorf("small logo resized to %v", b)
	}

	img, err = LoadLogo(large)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != MaxLogoEdge || b.Dy() != MaxLogoEdge/2 {
		t.Errorf("large logo = %v, want %dx%d", b, MaxLogoEdge, MaxLogoEdge/2)
	}
}

func TestLoadLogoRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLogo(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brand.png")
	writePNG(t, path, 16, 16)

	r := NewRegistry()
	r.Register("brand", path)
	r.Register("aardvark", filepath.Join(dir, "missing.png"))

	if names := r.List(); len(names) != 2 || names[0] != "aardvark" {
		t.Errorf("List() = %v", names)
	}

	img, err := r.Image("brand")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := r.Image("brand")
	if img != again {
		t.Error("expected cached image")
	}

	if _, err := r.Image("nope"); !errors.Is(err, ErrUnknownLogo) {
		t.Errorf("Image(nope) = %v", err)
	}
	if _, err := r.Image("aardvark"); err == nil {
		t.Error("expected error for missing file")
	}
}

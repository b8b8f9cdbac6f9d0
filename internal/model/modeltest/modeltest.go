// ABOUTME: Helpers for building model bundles and dataset images in tests
// ABOUTME: Shared by the model, evaluate, pipeline, and serving test suites

package modeltest

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// Class pairs a class name with the uniform intensity of its test images.
// A centroid built from the same intensity makes the nearest-centroid
// classifier predict that class for those images deterministically.
type Class struct {
	Name      string
	Intensity float64 // grayscale in [0, 1]
}

// layer is one entry of the bundle's config.json layer stack.
type layer struct {
	ClassName string                 `json:"class_name"`
	Config    map[string]interface{} `json:"config"`
}

// DefaultLayers is a small plausible layer stack for test bundles.
func DefaultLayers() []map[string]interface{} {
	return []map[string]interface{}{
		{"class_name": "Conv2D", "config": map[string]interface{}{"filters": 32, "activation": "relu"}},
		{"class_name": "MaxPooling2D", "config": map[string]interface{}{}},
		{"class_name": "Dense", "config": map[string]interface{}{"units": 4, "activation": "softmax"}},
	}
}

// WriteBundle writes a model bundle zip at path. When classes is non-empty a
// classifier table is included with an 8x8 grid and constant centroids at
// each class's intensity.
func WriteBundle(t testing.TB, path string, classes []Class) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating bundle: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	var layers []layer
	for _, l := range DefaultLayers() {
		layers = append(layers, layer{
			ClassName: l["class_name"].(string),
			Config:    l["config"].(map[string]interface{}),
		})
	}
	config := map[string]interface{}{
		"class_name": "Sequential",
		"config":     map[string]interface{}{"layers": layers},
	}
	writeZipJSON(t, zw, "config.json", config)

	if len(classes) > 0 {
		const w, h = 8, 8
		type classEntry struct {
			Name     string    `json:"name"`
			Centroid []float64 `json:"centroid"`
		}
		table := struct {
			Width   int          `json:"width"`
			Height  int          `json:"height"`
			Classes []classEntry `json:"classes"`
		}{Width: w, Height: h}
		for _, c := range classes {
			centroid := make([]float64, w*h)
			for i := range centroid {
				centroid[i] = c.Intensity
			}
			table.Classes = append(table.Classes, classEntry{Name: c.Name, Centroid: centroid})
		}
		writeZipJSON(t, zw, "classifier.json", table)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("closing bundle: %v", err)
	}
}

func writeZipJSON(t testing.TB, zw *zip.Writer, name string, v interface{}) {
	t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("creating %s: %v", name, err)
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encoding %s: %v", name, err)
	}
}

// GrayImage returns a uniform grayscale image at the given intensity.
func GrayImage(intensity float64) image.Image {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	v := uint8(intensity * 255)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// WriteGrayPNG writes a uniform grayscale PNG file at path.
func WriteGrayPNG(t testing.TB, path string, intensity float64) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating image: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, GrayImage(intensity)); err != nil {
		t.Fatalf("encoding image: %v", err)
	}
}

// WriteDataset lays out a directory-per-class dataset under root with count
// images per class, each at the class's intensity.
func WriteDataset(t testing.TB, root string, classes []Class, count int) {
	t.Helper()

	for _, c := range classes {
		dir := filepath.Join(root, c.Name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("creating class dir: %v", err)
		}
		for i := 0; i < count; i++ {
			WriteGrayPNG(t, filepath.Join(dir, fmt.Sprintf("img_%03d.png", i)), c.Intensity)
		}
	}
}

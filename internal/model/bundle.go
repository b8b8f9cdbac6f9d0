// ABOUTME: Loader for stored model bundles (zip archives with a config.json)
// ABOUTME: Extracts the layer architecture and an optional classifier table

package model

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Bundle errors
var (
	// ErrInvalidBundle means the file is missing, unreadable, or not a
	// model bundle.
	ErrInvalidBundle = errors.New("invalid model bundle")

	// ErrNoClassifier means the bundle carries no classifier table, so it
	// can describe itself but not predict.
	ErrNoClassifier = errors.New("bundle has no classifier table")
)

// bundle archive member names.
const (
	configFile     = "config.json"
	classifierFile = "classifier.json"
)

// layerConfig is the subset of a layer entry in config.json we care about.
type layerConfig struct {
	ClassName string                 `json:"class_name"`
	Config    map[string]interface{} `json:"config"`
}

// bundleConfig is the subset of config.json we care about.
type bundleConfig struct {
	ClassName string `json:"class_name"`
	Config    struct {
		Layers []layerConfig `json:"layers"`
	} `json:"config"`
}

// classifierTable is the nearest-centroid table stored in classifier.json.
type classifierTable struct {
	Width   int               `json:"width"`
	Height  int               `json:"height"`
	Classes []classifierClass `json:"classes"`
}

type classifierClass struct {
	Name     string    `json:"name"`
	Centroid []float64 `json:"centroid"`
}

// Bundle is a loaded model artifact.
type Bundle struct {
	architecture map[string]string
	classifier   *classifierTable
}

// Load opens a model bundle from disk. The bundle is a zip archive (the
// registry stores .keras files, which are zips) whose config.json describes
// the layer stack. A classifier.json table is optional; without it the
// bundle cannot predict.
func Load(path string) (*Bundle, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	defer zr.Close()

	var cfg *bundleConfig
	var table *classifierTable

	for _, f := range zr.File {
		switch f.Name {
		case configFile:
			cfg = &bundleConfig{}
			if err := readJSON(f, cfg); err != nil {
				return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidBundle, configFile, err)
			}
		case classifierFile:
			table = &classifierTable{}
			if err := readJSON(f, table); err != nil {
				return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidBundle, classifierFile, err)
			}
		}
	}

	if cfg == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidBundle, configFile)
	}
	if table != nil {
		if err := table.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
		}
	}

	return &Bundle{
		architecture: summarizeLayers(cfg.Config.Layers),
		classifier:   table,
	}, nil
}

func readJSON(f *zip.File, v interface{}) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (t *classifierTable) validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("classifier table has invalid dimensions %dx%d", t.Width, t.Height)
	}
	if len(t.Classes) == 0 {
		return fmt.Errorf("classifier table has no classes")
	}
	want := t.Width * t.Height
	for _, c := range t.Classes {
		if len(c.Centroid) != want {
			return fmt.Errorf("class %q centroid has %d values, want %d", c.Name, len(c.Centroid), want)
		}
	}
	return nil
}

// summarizeLayers renders the layer stack as an ordered layerN -> description
// map, the shape the registry stores.
func summarizeLayers(layers []layerConfig) map[string]string {
	arch := make(map[string]string, len(layers))
	for i, l := range layers {
		arch[fmt.Sprintf("layer%d", i)] = describeLayer(l)
	}
	return arch
}

// describeLayer renders one layer as "ClassName(key=value, ...)" using the
// small set of config keys worth surfacing.
func describeLayer(l layerConfig) string {
	keys := []string{"filters", "units", "kernel_size", "pool_size", "activation", "rate"}
	var parts []string
	for _, k := range keys {
		if v, ok := l.Config[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return l.ClassName
	}

	out := l.ClassName + "("
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out + ")"
}

// Architecture returns the layer-by-layer summary of the bundle.
func (b *Bundle) Architecture() map[string]string {
	return b.architecture
}

// CanPredict reports whether the bundle carries a classifier table.
func (b *Bundle) CanPredict() bool {
	return b.classifier != nil
}

// Classes returns the class names the bundle can predict, in table order.
func (b *Bundle) Classes() []string {
	if b.classifier == nil {
		return nil
	}
	names := make([]string, len(b.classifier.Classes))
	for i, c := range b.classifier.Classes {
		names[i] = c.Name
	}
	return names
}

// ABOUTME: Held-out evaluation dataset stored as a directory-per-class image tree
// ABOUTME: Filtered to a caller-provided class list and consumed in fixed-size batches

package evaluate

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// Dataset images are PNG or JPEG.
	_ "image/jpeg"
	_ "image/png"
)

// DefaultBatchSize is the evaluation batch size.
const DefaultBatchSize = 32

// Sample is one labeled evaluation image. Label indexes into the dataset's
// class name list.
type Sample struct {
	Image image.Image
	Label int
}

// Dataset is a directory-per-class image tree filtered to an ordered list of
// class names.
type Dataset struct {
	root       string
	classNames []string
	files      []labeledFile
}

type labeledFile struct {
	path  string
	label int
}

// Open scans the dataset root for the given classes. Every class must have a
// directory; image files are collected in a deterministic order.
func Open(root string, classNames []string) (*Dataset, error) {
	if len(classNames) == 0 {
		return nil, fmt.Errorf("no class names given")
	}

	d := &Dataset{root: root, classNames: classNames}
	for label, name := range classNames {
		dir := filepath.Join(root, name)
		dirents, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading class directory %s: %w", dir, err)
		}

		var paths []string
		for _, de := range dirents {
			if de.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(de.Name())) {
			case ".png", ".jpg", ".jpeg":
				paths = append(paths, filepath.Join(dir, de.Name()))
			}
		}
		sort.Strings(paths)

		for _, p := range paths {
			d.files = append(d.files, labeledFile{path: p, label: label})
		}
	}

	if len(d.files) == 0 {
		return nil, fmt.Errorf("dataset at %s has no images for classes %v", root, classNames)
	}
	return d, nil
}

// ClassNames returns the ordered class list the dataset was filtered to.
func (d *Dataset) ClassNames() []string {
	return d.classNames
}

// Size returns the total number of samples.
func (d *Dataset) Size() int {
	return len(d.files)
}

// Batches returns an iterator over the dataset in batches of size. A size of
// zero selects DefaultBatchSize.
func (d *Dataset) Batches(size int) *BatchIter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &BatchIter{dataset: d, size: size}
}

// BatchIter walks a dataset in fixed-size batches. The final batch may be
// short.
type BatchIter struct {
	dataset *Dataset
	size    int
	pos     int
}

// Next decodes and returns the next batch. It returns nil once the dataset
// is exhausted.
func (it *BatchIter) Next() ([]Sample, error) {
	if it.pos >= len(it.dataset.files) {
		return nil, nil
	}

	end := it.pos + it.size
	if end > len(it.dataset.files) {
		end = len(it.dataset.files)
	}

	batch := make([]Sample, 0, end-it.pos)
	for _, lf := range it.dataset.files[it.pos:end] {
		img, err := decodeImage(lf.path)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", lf.path, err)
		}
		batch = append(batch, Sample{Image: img, Label: lf.label})
	}

	it.pos = end
	return batch, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

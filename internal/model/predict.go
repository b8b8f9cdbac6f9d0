// ABOUTME: Nearest-centroid prediction over a bundle's classifier table
// ABOUTME: Images are pooled to the table's grid and matched by distance

package model

import (
	"fmt"
	"image"
	"math"
)

// Prediction is the outcome of classifying one image.
type Prediction struct {
	Class  string
	Scores map[string]float64 // per-class score in (0, 1], higher is closer
}

// Predict classifies an image against the bundle's classifier table.
// Returns ErrNoClassifier when the bundle carries no table.
func (b *Bundle) Predict(img image.Image) (Prediction, error) {
	if b.classifier == nil {
		return Prediction{}, ErrNoClassifier
	}

	features := pool(img, b.classifier.Width, b.classifier.Height)

	best := -1
	bestDist := math.Inf(1)
	scores := make(map[string]float64, len(b.classifier.Classes))
	for i, c := range b.classifier.Classes {
		d := distance(features, c.Centroid)
		scores[c.Name] = 1.0 / (1.0 + d)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return Prediction{}, fmt.Errorf("classifier table is empty")
	}

	return Prediction{Class: b.classifier.Classes[best].Name, Scores: scores}, nil
}

// PredictBatch classifies a batch of images, returning one class name per
// image in order.
func (b *Bundle) PredictBatch(imgs []image.Image) ([]string, error) {
	out := make([]string, len(imgs))
	for i, img := range imgs {
		p, err := b.Predict(img)
		if err != nil {
			return nil, err
		}
		out[i] = p.Class
	}
	return out, nil
}

// pool converts an image to a w*h grid of average grayscale intensities
// normalized to [0, 1], row-major.
func pool(img image.Image, w, h int) []float64 {
	bounds := img.Bounds()
	iw, ih := bounds.Dx(), bounds.Dy()
	out := make([]float64, w*h)

	for cy := 0; cy < h; cy++ {
		for cx := 0; cx < w; cx++ {
			// Source block for this grid cell
			x0 := bounds.Min.X + cx*iw/w
			x1 := bounds.Min.X + (cx+1)*iw/w
			y0 := bounds.Min.Y + cy*ih/h
			y1 := bounds.Min.Y + (cy+1)*ih/h
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}

			var sum float64
			var count int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					// Luma from 16-bit channels
					sum += (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 65535.0
					count++
				}
			}
			out[cy*w+cx] = sum / float64(count)
		}
	}
	return out
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/draw"
)

// Locator is the template-matching primitive. Implementations search
// for needle inside haystack (optionally restricted to region) and
// return the bounding box of the best match at or above confidence, or
// an error satisfying errdefs.IsNotFound when there is none.
type Locator interface {
	Locate(needle, haystack image.Image, confidence float64, grayscale bool, region *image.Rectangle) (image.Rectangle, error)
}

// TextResult is a single OCR detection.
type TextResult struct {
	Text       string
	Confidence float64
}

// TextReader is the OCR engine, an external collaborator.
type TextReader interface {
	ReadText(img []byte) ([]TextResult, error)
}

// TextChecker wraps a TextReader with lowercase substring matching over
// the detected strings.
type TextChecker struct {
	reader TextReader
}

// NewTextChecker creates a checker over the given OCR reader.
func NewTextChecker(reader TextReader) *TextChecker {
	return &TextChecker{reader: reader}
}

// ReadText returns the lowercased texts detected in the image.
func (t *TextChecker) ReadText(img []byte) ([]string, error) {
	results, err := t.reader.ReadText(img)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, strings.ToLower(r.Text))
	}
	return texts, nil
}

// CheckText reports whether any detected text contains the needle,
// case-insensitively.
func (t *TextChecker) CheckText(needle string, img []byte) (bool, error) {
	texts, err := t.ReadText(img)
	if err != nil {
		return false, err
	}
	needle = strings.ToLower(needle)
	for _, text := range texts {
		if strings.Contains(text, needle) {
			return true, nil
		}
	}
	return false, nil
}

func decodeImage(b []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

func loadTemplate(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode template %s: %w", path, err)
	}
	return img, nil
}

// scaleByRatio resizes src by independent width and height ratios.
// Non-uniform scaling is deliberate: the rendered window can differ
// from the authored resolution in both axes.
func scaleByRatio(src image.Image, ratioW, ratioH float64) image.Image {
	bounds := src.Bounds()
	w := int(float64(bounds.Dx()) * ratioW)
	h := int(float64(bounds.Dy()) * ratioH)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func centerOf(r image.Rectangle) image.Point {
	return image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

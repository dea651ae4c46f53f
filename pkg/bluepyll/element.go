// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// ElementType classifies a UI element. The type decides which optional
// fields are meaningful; cross-validation happens once, at construction.
type ElementType string

const (
	ElementButton ElementType = "button"
	ElementInput  ElementType = "input"
	ElementImage  ElementType = "image"
	ElementText   ElementType = "text"
	ElementPixel  ElementType = "pixel"
)

// DefaultMatchConfidence is the template-match threshold used when an
// element does not set its own.
const DefaultMatchConfidence = 0.7

// RGB is an 8-bit color triple.
type RGB struct {
	R, G, B uint8
}

// Size is a width/height pair in pixels.
type Size struct {
	W, H int
}

// ElementSpec is the constructor input for a UIElement. Zero-valued
// optional fields take the type-specific defaults.
type ElementSpec struct {
	Label         string
	Type          ElementType
	RefResolution Resolution // resolution the coordinates were authored against
	Position      *image.Point
	Size          *Size
	ImagePath     string
	Static        *bool   // nil means true
	Confidence    float64 // 0 means DefaultMatchConfidence
	Text          string
	PixelColor    *RGB
}

// UIElement describes a locatable screen region, image, pixel or text
// target and how to find and click it against a screenshot. Immutable
// after construction.
type UIElement struct {
	label      string
	etype      ElementType
	ref        Resolution
	position   *image.Point
	size       *Size
	imagePath  string
	static     bool
	confidence float64
	text       string
	pixelColor *RGB
	region     *image.Rectangle
	center     *image.Point

	ctrl *Controller
}

// NewUIElement builds an element bound to the controller, validating
// and defaulting fields by type.
func NewUIElement(ctrl *Controller, spec ElementSpec) (*UIElement, error) {
	etype := ElementType(strings.ToLower(string(spec.Type)))
	switch etype {
	case ElementButton, ElementInput, ElementImage, ElementText, ElementPixel:
	default:
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown element type %q", spec.Type)}
	}
	if spec.RefResolution.Width <= 0 || spec.RefResolution.Height <= 0 {
		return nil, &ValidationError{Field: "reference resolution", Reason: "width and height must be positive"}
	}
	if spec.Size != nil && (spec.Size.W <= 0 || spec.Size.H <= 0) {
		return nil, &ValidationError{Field: "size", Reason: "width and height must be positive"}
	}

	e := &UIElement{
		label: strings.ToLower(spec.Label),
		etype: etype,
		ref:   spec.RefResolution,
		ctrl:  ctrl,
	}
	if spec.Position != nil {
		p := *spec.Position
		e.position = &p
	}

	switch etype {
	case ElementPixel:
		// Pixels are one-point targets: fixed size, always static, no
		// template image, no confidence, no text.
		e.size = &Size{W: 1, H: 1}
		e.static = true
		e.pixelColor = spec.PixelColor
	default:
		if spec.Size != nil {
			s := *spec.Size
			e.size = &s
		}
		e.imagePath = spec.ImagePath
		e.static = spec.Static == nil || *spec.Static
		e.text = strings.ToLower(spec.Text)
		if etype != ElementText {
			e.confidence = spec.Confidence
			if e.confidence == 0 {
				e.confidence = DefaultMatchConfidence
			}
			if e.confidence <= 0 || e.confidence > 1 {
				return nil, &ValidationError{Field: "confidence", Reason: "must be in (0, 1]"}
			}
		}
	}

	if e.position != nil && e.size != nil {
		r := image.Rect(e.position.X, e.position.Y, e.position.X+e.size.W, e.position.Y+e.size.H)
		e.region = &r
	}
	switch {
	case etype == ElementText:
		// no clickable center for pure text targets
	case etype == ElementPixel:
		e.center = e.position
	case e.position != nil && e.size != nil:
		c := image.Pt(e.position.X+e.size.W/2, e.position.Y+e.size.H/2)
		e.center = &c
	}
	return e, nil
}

func (e *UIElement) Label() string             { return e.label }
func (e *UIElement) Type() ElementType         { return e.etype }
func (e *UIElement) RefResolution() Resolution { return e.ref }
func (e *UIElement) Position() *image.Point    { return e.position }
func (e *UIElement) Size() *Size               { return e.size }
func (e *UIElement) ImagePath() string         { return e.imagePath }
func (e *UIElement) IsStatic() bool            { return e.static }
func (e *UIElement) Confidence() float64       { return e.confidence }
func (e *UIElement) Text() string              { return e.text }
func (e *UIElement) PixelColor() *RGB          { return e.pixelColor }
func (e *UIElement) Region() *image.Rectangle  { return e.region }
func (e *UIElement) Center() *image.Point      { return e.center }

// Where resolves the element's on-screen center by template matching.
// A nil screenshot is captured on demand: the loading-splash anchor
// goes through the window capturer (the debug bridge is not up yet),
// everything else through an adb screencap. maxRetries <= 0 retries
// forever. Returns false when the element cannot be located.
func (e *UIElement) Where(screenshot []byte, maxRetries int) (image.Point, bool) {
	if e.imagePath == "" {
		e.ctrl.warn("cannot find ui element, no template image set", "label", e.label)
		return image.Point{}, false
	}
	if e.ctrl.EmulatorState() == StateClosed {
		e.ctrl.warn("cannot find ui element, bluestacks is closed", "label", e.label)
		return image.Point{}, false
	}

	retries := 0
	for maxRetries <= 0 || retries < maxRetries {
		screen := screenshot
		if screen == nil {
			if e.ctrl.isLoadingSplash(e) {
				screen = e.ctrl.CaptureLoadingScreen()
			} else {
				screen = e.ctrl.CaptureScreenshot()
			}
		}
		if screen != nil {
			pt, err := e.locateIn(screen)
			if err == nil {
				return pt, true
			}
			if !errdefs.IsNotFound(err) && !errdefs.IsDeadlineExceeded(err) {
				e.ctrl.warn("ui lookup failed", "label", e.label, "error", err.Error())
				return image.Point{}, false
			}
		}
		retries++
		time.Sleep(e.ctrl.cfg.WaitInterval)
	}
	return image.Point{}, false
}

// locateIn rescales the stored template by the ratio of the live
// screenshot resolution to the authored reference resolution, then
// matches it grayscale inside the element's search region.
func (e *UIElement) locateIn(screen []byte) (image.Point, error) {
	haystack, err := decodeImage(screen)
	if err != nil {
		return image.Point{}, err
	}
	tmpl, err := loadTemplate(e.imagePath)
	if err != nil {
		return image.Point{}, err
	}
	bounds := haystack.Bounds()
	ratioW := float64(bounds.Dx()) / float64(e.ref.Width)
	ratioH := float64(bounds.Dy()) / float64(e.ref.Height)
	scaled := scaleByRatio(tmpl, ratioW, ratioH)

	box, err := e.ctrl.deps.Locator.Locate(scaled, haystack, e.confidence, true, e.region)
	if err != nil {
		return image.Point{}, err
	}
	return centerOf(box), nil
}

// Click locates the element and sends `times` taps at its center in a
// single batched shell invocation. Requires the emulator to be ready
// and a transport connection; returns false otherwise.
func (e *UIElement) Click(times int, screenshot []byte, maxRetries int) bool {
	if e.ctrl.EmulatorState() != StateReady {
		e.ctrl.warn("cannot click ui element, bluestacks is not ready", "label", e.label)
		return false
	}
	if !e.ctrl.ConnectADB() {
		e.ctrl.warn("adb device could not connect, skipping click", "label", e.label)
		return false
	}
	pt, ok := e.Where(screenshot, maxRetries)
	if !ok {
		return false
	}
	return e.ClickCoord(pt, times)
}

// ClickCoord sends `times` taps at the given coordinate.
func (e *UIElement) ClickCoord(pt image.Point, times int) bool {
	if e.ctrl.EmulatorState() != StateReady {
		e.ctrl.warn("cannot click coords, bluestacks is not ready", "label", e.label)
		return false
	}
	if !e.ctrl.ConnectADB() {
		e.ctrl.warn("adb device could not connect, skipping click", "label", e.label)
		return false
	}
	if times < 1 {
		times = 1
	}
	if _, err := e.ctrl.deps.Transport.Shell(tapCmd(pt.X, pt.Y, times), shellOpts(e.ctrl.cfg.Timeout)); err != nil {
		e.ctrl.warn("tap failed", "label", e.label, "error", err.Error())
		return false
	}
	e.ctrl.log("click sent", "label", e.label, "x", pt.X, "y", pt.Y, "times", times)
	return true
}

// CheckPixelColor samples the element's center in the given image (or a
// fresh screenshot) and compares each channel against target within
// tolerance, inclusive. Pixel elements only; a nil target falls back to
// the element's own color.
func (e *UIElement) CheckPixelColor(target *RGB, img []byte, tolerance int) (bool, error) {
	if e.etype != ElementPixel {
		return false, &ValidationError{Field: "element type", Reason: "pixel color checks require a pixel element"}
	}
	if e.center == nil {
		return false, &ValidationError{Field: "coords", Reason: "pixel element has no position"}
	}
	if target == nil {
		target = e.pixelColor
	}
	if target == nil {
		return false, &ValidationError{Field: "target color", Reason: "no color to compare against"}
	}
	if tolerance < 0 {
		return false, &ValidationError{Field: "tolerance", Reason: "must be a non-negative integer"}
	}

	screen := img
	if screen == nil {
		screen = e.ctrl.CaptureScreenshot()
	}
	if screen == nil {
		return false, fmt.Errorf("capture screenshot: %w", errdefs.ErrUnavailable)
	}
	decoded, err := decodeImage(screen)
	if err != nil {
		return false, err
	}
	sample := color.RGBAModel.Convert(decoded.At(e.center.X, e.center.Y)).(color.RGBA)
	return withinTolerance(sample.R, target.R, tolerance) &&
		withinTolerance(sample.G, target.G, tolerance) &&
		withinTolerance(sample.B, target.B, tolerance), nil
}

func withinTolerance(a, b uint8, tolerance int) bool {
	diff := int(a) - int(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func (e *UIElement) String() string {
	return fmt.Sprintf("UIElement(label=%s, type=%s)", e.label, e.etype)
}

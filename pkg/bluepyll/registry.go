// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import "path/filepath"

// ElementRegistry is the fixed set of anchor elements for known
// BlueStacks screens, bound to the controller's reference resolution at
// construction. Read-only afterwards; it does not re-derive anything if
// the controller's reference resolution changes later.
//
// Labels and asset filenames are kept byte-for-byte compatible with the
// historical template assets, including the "buttoon" misspelling.
type ElementRegistry struct {
	// LoadingSplash is the window-captured splash shown before the
	// debug bridge is reachable.
	LoadingSplash *UIElement
	// LoadingScreen detects the in-player loading screen.
	LoadingScreen        *UIElement
	MyGamesButton        *UIElement
	StoreSearchInput     *UIElement
	StoreButton          *UIElement
	PlayStoreSearchInput *UIElement
	// ADBScreenshotMarker is the screenshot-diff marker.
	ADBScreenshotMarker *UIElement
}

func newElementRegistry(c *Controller) (*ElementRegistry, error) {
	ref := c.RefWindowSize()
	asset := func(name string) string { return filepath.Join(c.cfg.AssetsDir, name) }
	staticFalse := false

	reg := &ElementRegistry{}
	specs := []struct {
		dst  **UIElement
		spec ElementSpec
	}{
		{&reg.LoadingSplash, ElementSpec{
			Label:         "bluestacks_loading_img",
			Type:          ElementImage,
			RefResolution: ref,
			ImagePath:     asset("bluestacks_loading_img.png"),
			Confidence:    0.6,
			Text:          "Starting BlueStacks",
		}},
		{&reg.MyGamesButton, ElementSpec{
			Label:         "bluestacks_my_games_buttoon",
			Type:          ElementButton,
			RefResolution: ref,
			ImagePath:     asset("bluestacks_my_games_buttoon.png"),
			Confidence:    0.6,
			Text:          "My games",
		}},
		{&reg.StoreSearchInput, ElementSpec{
			Label:         "bluestacks_store_search_input",
			Type:          ElementInput,
			RefResolution: ref,
			ImagePath:     asset("bluestacks_store_search_input.png"),
			Static:        &staticFalse,
			Confidence:    0.6,
			Text:          "Search for games & apps",
		}},
		{&reg.StoreButton, ElementSpec{
			Label:         "bluestacks_store_button",
			Type:          ElementButton,
			RefResolution: ref,
			ImagePath:     asset("bluestacks_store_button.png"),
			Confidence:    0.6,
		}},
		{&reg.PlayStoreSearchInput, ElementSpec{
			Label:         "bluestacks_playstore_search_input",
			Type:          ElementInput,
			RefResolution: ref,
			ImagePath:     asset("bluestacks_playstore_search_input.png"),
			Static:        &staticFalse,
			Confidence:    0.5,
			Text:          "Search for games & apps",
		}},
		{&reg.LoadingScreen, ElementSpec{
			Label:         "bluestacks_loading_screen_img",
			Type:          ElementImage,
			RefResolution: ref,
			ImagePath:     asset("bluestacks_loading_screen_img.png"),
			Static:        &staticFalse,
			Confidence:    0.99,
		}},
		{&reg.ADBScreenshotMarker, ElementSpec{
			Label:         "adb_screenshot_img",
			Type:          ElementImage,
			RefResolution: ref,
			ImagePath:     asset("adb_screenshot_img.png"),
			Static:        &staticFalse,
			Confidence:    0.99,
		}},
	}
	for _, s := range specs {
		el, err := NewUIElement(c, s.spec)
		if err != nil {
			return nil, err
		}
		*s.dst = el
	}
	return reg, nil
}

// All returns the registry anchors in declaration order.
func (r *ElementRegistry) All() []*UIElement {
	return []*UIElement{
		r.LoadingSplash,
		r.LoadingScreen,
		r.MyGamesButton,
		r.StoreSearchInput,
		r.StoreButton,
		r.PlayStoreSearchInput,
		r.ADBScreenshotMarker,
	}
}

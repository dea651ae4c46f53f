// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAnchors(t *testing.T) {
	cfg := testConfig(t)
	c := newTestController(t, cfg, Deps{})
	reg := c.Elements()
	require.NotNil(t, reg)

	all := reg.All()
	require.Len(t, all, 7)
	for _, e := range all {
		require.NotNil(t, e)
	}

	// labels match the historical template assets, typo included
	assert.Equal(t, "bluestacks_loading_img", reg.LoadingSplash.Label())
	assert.Equal(t, "bluestacks_my_games_buttoon", reg.MyGamesButton.Label())
	assert.Equal(t, "bluestacks_store_search_input", reg.StoreSearchInput.Label())
	assert.Equal(t, "bluestacks_store_button", reg.StoreButton.Label())
	assert.Equal(t, "bluestacks_playstore_search_input", reg.PlayStoreSearchInput.Label())
	assert.Equal(t, "bluestacks_loading_screen_img", reg.LoadingScreen.Label())
	assert.Equal(t, "adb_screenshot_img", reg.ADBScreenshotMarker.Label())

	assert.Equal(t, filepath.Join(cfg.AssetsDir, "bluestacks_my_games_buttoon.png"),
		reg.MyGamesButton.ImagePath())
}

func TestRegistryConfidences(t *testing.T) {
	reg := newTestController(t, testConfig(t), Deps{}).Elements()

	assert.Equal(t, 0.6, reg.LoadingSplash.Confidence())
	assert.Equal(t, 0.6, reg.MyGamesButton.Confidence())
	assert.Equal(t, 0.6, reg.StoreSearchInput.Confidence())
	assert.Equal(t, 0.6, reg.StoreButton.Confidence())
	assert.Equal(t, 0.5, reg.PlayStoreSearchInput.Confidence())
	assert.Equal(t, 0.99, reg.LoadingScreen.Confidence())
	assert.Equal(t, 0.99, reg.ADBScreenshotMarker.Confidence())
}

func TestRegistryStaticFlags(t *testing.T) {
	reg := newTestController(t, testConfig(t), Deps{}).Elements()

	assert.True(t, reg.LoadingSplash.IsStatic())
	assert.True(t, reg.MyGamesButton.IsStatic())
	assert.True(t, reg.StoreButton.IsStatic())
	assert.False(t, reg.StoreSearchInput.IsStatic())
	assert.False(t, reg.PlayStoreSearchInput.IsStatic())
	assert.False(t, reg.LoadingScreen.IsStatic())
	assert.False(t, reg.ADBScreenshotMarker.IsStatic())
}

func TestRegistryTypesAndText(t *testing.T) {
	reg := newTestController(t, testConfig(t), Deps{}).Elements()

	assert.Equal(t, ElementImage, reg.LoadingSplash.Type())
	assert.Equal(t, ElementButton, reg.MyGamesButton.Type())
	assert.Equal(t, ElementInput, reg.StoreSearchInput.Type())

	assert.Equal(t, "starting bluestacks", reg.LoadingSplash.Text())
	assert.Equal(t, "my games", reg.MyGamesButton.Text())
	assert.Equal(t, "search for games & apps", reg.StoreSearchInput.Text())

	ref := Resolution{Width: DefaultRefWidth, Height: DefaultRefHeight}
	for _, e := range reg.All() {
		assert.Equal(t, ref, e.RefResolution())
	}
}

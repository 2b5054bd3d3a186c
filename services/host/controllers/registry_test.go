// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deviceConfigs() []ControllerConfig {
	return []ControllerConfig{
		// Verification first in the list on purpose: build order must
		// not depend on config order.
		{Type: KindVerification, Implementation: ImplVerifyText},
		{Type: KindVerification, Implementation: ImplVerifyADB,
			Params: map[string]any{"device_ip": "10.0.0.7", "device_port": "5555"}},
		{Type: KindRemote, Implementation: ImplAndroidTV,
			Params: map[string]any{"device_ip": "10.0.0.7", "device_port": "5555"}},
		{Type: KindAV, Implementation: ImplHDMIStream,
			Params: map[string]any{"video_stream_path": "/dev/video0"}},
		{Type: KindPower, Implementation: ImplTapo,
			Params: map[string]any{"power_ip": "10.0.0.8"}},
	}
}

func TestBuildRegistry_Capabilities(t *testing.T) {
	r := BuildRegistry("device1", "fire_tv", deviceConfigs())

	assert.True(t, r.HasCapability(KindRemote))
	assert.True(t, r.HasCapability(KindAV))
	assert.True(t, r.HasCapability(KindVerification))
	assert.True(t, r.HasCapability(KindPower))
	assert.False(t, r.HasCapability(KindWeb))
	assert.False(t, r.HasCapability(KindDesktop))

	assert.Len(t, r.Capabilities(), 4)
	assert.Len(t, r.GetAll(KindVerification), 2)
}

func TestBuildRegistry_AVInjectedIntoVerification(t *testing.T) {
	r := BuildRegistry("device1", "fire_tv", deviceConfigs())

	var textVerify *avVerification
	for _, c := range r.GetAll(KindVerification) {
		if av, ok := c.(*avVerification); ok && av.impl == ImplVerifyText {
			textVerify = av
		}
	}
	require.NotNil(t, textVerify)
	assert.Same(t, r.AV(), textVerify.av)
	assert.Equal(t, "fire_tv", textVerify.deviceModel)
}

func TestBuildRegistry_AVVerificationWithoutAVDropped(t *testing.T) {
	// No av controller configured: image/text verification cannot be
	// built, but adb verification survives.
	r := BuildRegistry("device1", "pixel_7", []ControllerConfig{
		{Type: KindVerification, Implementation: ImplVerifyImage},
		{Type: KindVerification, Implementation: ImplVerifyADB,
			Params: map[string]any{"device_ip": "10.0.0.7"}},
	})

	verifications := r.Verifications()
	require.Len(t, verifications, 1)
	assert.Equal(t, ImplVerifyADB, verifications[0].Implementation())
}

func TestBuildRegistry_UnknownImplementationSkipped(t *testing.T) {
	r := BuildRegistry("device1", "pixel_7", []ControllerConfig{
		{Type: KindRemote, Implementation: "carrier_pigeon"},
		{Type: KindRemote, Implementation: ImplAndroidMobile,
			Params: map[string]any{"device_ip": "10.0.0.7"}},
	})

	// Unknown pair skipped, construction of the rest continued.
	require.Len(t, r.GetAll(KindRemote), 1)
	assert.Equal(t, ImplAndroidMobile, r.Remote().Implementation())
}

func TestBuildRegistry_MissingParamsRemovesOnlyThatController(t *testing.T) {
	r := BuildRegistry("device1", "pixel_7", []ControllerConfig{
		{Type: KindRemote, Implementation: ImplAndroidMobile}, // no device_ip
		{Type: KindPower, Implementation: ImplTapo,
			Params: map[string]any{"power_ip": "10.0.0.8"}},
	})

	assert.Nil(t, r.Remote())
	assert.NotNil(t, r.Power())
}

func TestVerificationFor(t *testing.T) {
	r := BuildRegistry("device1", "fire_tv", deviceConfigs())

	assert.NotNil(t, r.VerificationFor(ImplVerifyText))
	assert.NotNil(t, r.VerificationFor(ImplVerifyADB))
	assert.Nil(t, r.VerificationFor(ImplVerifyAudio))
}

func TestAvailableActionTypes(t *testing.T) {
	r := BuildRegistry("device1", "fire_tv", deviceConfigs())

	actions := r.AvailableActionTypes()
	assert.Contains(t, actions["remote"], "press_key")
	assert.Contains(t, actions["av"], "capture_screenshot")
	assert.Contains(t, actions["power"], "power_on")

	verifications := r.AvailableVerificationTypes()
	assert.Contains(t, verifications["text"], "waitForTextToAppear")
	assert.Contains(t, verifications["adb"], "element_exists")
}

func TestFindElementCenter(t *testing.T) {
	dump := `<node text="Search" resource-id="menu_search" bounds="[100,200][300,260]"/>`

	x, y, err := findElementCenter(dump, "Search")
	require.NoError(t, err)
	assert.Equal(t, 200, x)
	assert.Equal(t, 230, y)

	_, _, err = findElementCenter(dump, "Missing")
	assert.Error(t, err)
}

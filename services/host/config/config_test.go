// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DeviceLab/services/host/controllers"
)

func TestLoad_HostAndDevices(t *testing.T) {
	t.Setenv("HOST_NAME", "lab-host-2")
	t.Setenv("HOST_PORT", "7000")
	t.Setenv("SERVER_URL", "https://server.example.com/")

	t.Setenv("DEVICE1_NAME", "living-room-fire-tv")
	t.Setenv("DEVICE1_MODEL", "fire_tv_4k")
	t.Setenv("DEVICE1_VIDEO", "hdmi")
	t.Setenv("DEVICE1_IP", "10.0.0.21")
	t.Setenv("DEVICE1_PORT", "5555")

	t.Setenv("DEVICE3_NAME", "bedroom-tablet")
	t.Setenv("DEVICE3_MODEL", "android_tablet")
	t.Setenv("DEVICE3_APPIUM_URL", "http://localhost:4723")

	cfg := Load()
	assert.Equal(t, "lab-host-2", cfg.Name)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "https://server.example.com/server/script/taskComplete", cfg.CallbackURL)

	// DEVICE2 has no NAME, so only two devices exist and ids follow
	// the env block index.
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "device1", cfg.Devices[0].ID)
	assert.Equal(t, "device3", cfg.Devices[1].ID)
}

func TestLoad_DefaultsWithEmptyEnv(t *testing.T) {
	t.Setenv("HOST_NAME", "")
	t.Setenv("HOST_PORT", "not-a-number")

	cfg := Load()
	assert.Equal(t, "host1", cfg.Name)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Empty(t, cfg.CallbackURL)
}

func TestControllerConfigs_ADBTVDevice(t *testing.T) {
	d := DeviceConfig{
		ID:    "device1",
		Model: "fire_tv_4k",
		Video: "hdmi",
		IP:    "10.0.0.21",
		Port:  "5555",
	}
	configs := d.ControllerConfigs()

	kinds := map[controllers.Kind][]string{}
	for _, c := range configs {
		kinds[c.Type] = append(kinds[c.Type], c.Implementation)
	}
	assert.Equal(t, []string{controllers.ImplHDMIStream}, kinds[controllers.KindAV])
	assert.Equal(t, []string{controllers.ImplAndroidTV}, kinds[controllers.KindRemote])
	assert.Contains(t, kinds[controllers.KindVerification], controllers.ImplVerifyADB)
	assert.Contains(t, kinds[controllers.KindVerification], controllers.ImplVerifyText)
	assert.Empty(t, kinds[controllers.KindPower])
}

func TestControllerConfigs_AppiumBeatsADB(t *testing.T) {
	d := DeviceConfig{
		ID:        "device2",
		Model:     "android_mobile",
		IP:        "10.0.0.30",
		AppiumURL: "http://localhost:4723",
	}
	configs := d.ControllerConfigs()

	var remotes, verifications []string
	for _, c := range configs {
		switch c.Type {
		case controllers.KindRemote:
			remotes = append(remotes, c.Implementation)
		case controllers.KindVerification:
			verifications = append(verifications, c.Implementation)
		}
	}
	assert.Equal(t, []string{controllers.ImplAppium}, remotes)
	assert.Equal(t, []string{controllers.ImplVerifyAppium}, verifications)
}

func TestControllerConfigs_IRFallbackAndPower(t *testing.T) {
	d := DeviceConfig{
		ID:        "device4",
		Model:     "set_top_box",
		IRPath:    "/dev/lirc0",
		IRType:    "nec",
		PowerType: "tapo",
		PowerIP:   "10.0.0.40",
	}
	configs := d.ControllerConfigs()

	var remote, power string
	for _, c := range configs {
		switch c.Type {
		case controllers.KindRemote:
			remote = c.Implementation
		case controllers.KindPower:
			power = c.Implementation
		}
	}
	assert.Equal(t, controllers.ImplIRRemote, remote)
	assert.Equal(t, controllers.ImplTapo, power)
}

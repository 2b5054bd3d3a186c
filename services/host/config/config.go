// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config parses the host service's environment. Configuration
// errors are never fatal at this layer: a malformed device block is
// logged and skipped so the remaining devices still come up.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/DeviceLab/services/host/controllers"
)

// MaxDevices is the number of DEVICE{i}_ blocks scanned, i in [1,4].
const MaxDevices = 4

// DefaultPort is used when HOST_PORT is unset or unparseable.
const DefaultPort = 6109

// HostConfig is the host-level configuration from HOST_* variables
// plus the service-level endpoints.
type HostConfig struct {
	Name             string
	Port             int
	URL              string
	VNCStreamPath    string
	VideoCapturePath string
	VNCPassword      string
	WebBrowserPath   string

	// ServerURL is the base URL of the server backing persistence and
	// receiving task callbacks.
	ServerURL   string
	ServerToken string

	// CallbackURL receives async task completion posts. Empty disables
	// callbacks.
	CallbackURL string

	OTELEndpoint string
	GCSBucket    string
	OpenAIAPIKey string
	OpenAIModel  string

	Devices []DeviceConfig
}

// DeviceConfig is one DEVICE{i}_ block.
type DeviceConfig struct {
	ID    string
	Name  string
	Model string

	Video            string
	VideoStreamPath  string
	VideoCapturePath string

	IP   string
	Port string

	IRPath string
	IRType string

	PowerType string
	PowerIP   string
	PowerUser string
	PowerPass string

	AppiumURL      string
	AppiumPlatform string
}

// Load reads the full host configuration from the environment.
func Load() *HostConfig {
	cfg := &HostConfig{
		Name:             envOr("HOST_NAME", "host1"),
		Port:             envInt("HOST_PORT", DefaultPort),
		URL:              os.Getenv("HOST_URL"),
		VNCStreamPath:    os.Getenv("HOST_VNC_STREAM_PATH"),
		VideoCapturePath: os.Getenv("HOST_VIDEO_CAPTURE_PATH"),
		VNCPassword:      os.Getenv("HOST_VNC_PASSWORD"),
		WebBrowserPath:   os.Getenv("HOST_WEB_BROWSER_PATH"),
		ServerURL:        os.Getenv("SERVER_URL"),
		ServerToken:      os.Getenv("SERVER_TOKEN"),
		OTELEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		GCSBucket:        os.Getenv("GCS_BUCKET"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
	}
	if cfg.ServerURL != "" {
		cfg.CallbackURL = strings.TrimRight(cfg.ServerURL, "/") + "/server/script/taskComplete"
	}

	for i := 1; i <= MaxDevices; i++ {
		device, ok := loadDevice(i)
		if !ok {
			continue
		}
		cfg.Devices = append(cfg.Devices, device)
	}
	return cfg
}

// loadDevice reads one DEVICE{i}_ block. A block without a NAME is
// treated as absent.
func loadDevice(i int) (DeviceConfig, bool) {
	prefix := fmt.Sprintf("DEVICE%d_", i)
	name := os.Getenv(prefix + "NAME")
	if name == "" {
		return DeviceConfig{}, false
	}

	device := DeviceConfig{
		ID:               fmt.Sprintf("device%d", i),
		Name:             name,
		Model:            os.Getenv(prefix + "MODEL"),
		Video:            os.Getenv(prefix + "VIDEO"),
		VideoStreamPath:  os.Getenv(prefix + "VIDEO_STREAM_PATH"),
		VideoCapturePath: os.Getenv(prefix + "VIDEO_CAPTURE_PATH"),
		IP:               os.Getenv(prefix + "IP"),
		Port:             os.Getenv(prefix + "PORT"),
		IRPath:           os.Getenv(prefix + "IR_PATH"),
		IRType:           os.Getenv(prefix + "IR_TYPE"),
		PowerType:        os.Getenv(prefix + "POWER_TYPE"),
		PowerIP:          os.Getenv(prefix + "POWER_IP"),
		PowerUser:        os.Getenv(prefix + "POWER_USER"),
		PowerPass:        os.Getenv(prefix + "POWER_PASSWORD"),
		AppiumURL:        os.Getenv(prefix + "APPIUM_URL"),
		AppiumPlatform:   os.Getenv(prefix + "APPIUM_PLATFORM"),
	}
	if device.Model == "" {
		slog.Warn("Device block has no model, capability inference degraded",
			"device", device.ID, "name", name)
	}
	return device, true
}

// ControllerConfigs derives the flat controller configuration for the
// device from its env block. Incomplete capability groups are skipped
// with a warning.
func (d *DeviceConfig) ControllerConfigs() []controllers.ControllerConfig {
	var configs []controllers.ControllerConfig

	if d.Video != "" {
		configs = append(configs, controllers.ControllerConfig{
			Type:           controllers.KindAV,
			Implementation: avImplementation(d.Video),
			Params: map[string]any{
				"stream_path":  d.VideoStreamPath,
				"capture_path": d.VideoCapturePath,
			},
		})
	}

	switch {
	case d.AppiumURL != "":
		configs = append(configs, controllers.ControllerConfig{
			Type:           controllers.KindRemote,
			Implementation: controllers.ImplAppium,
			Params: map[string]any{
				"url":      d.AppiumURL,
				"platform": d.AppiumPlatform,
			},
		})
	case d.IP != "":
		configs = append(configs, controllers.ControllerConfig{
			Type:           controllers.KindRemote,
			Implementation: remoteImplementation(d.Model),
			Params: map[string]any{
				"ip":   d.IP,
				"port": d.Port,
			},
		})
	case d.IRPath != "":
		configs = append(configs, controllers.ControllerConfig{
			Type:           controllers.KindRemote,
			Implementation: controllers.ImplIRRemote,
			Params: map[string]any{
				"path": d.IRPath,
				"type": d.IRType,
			},
		})
	}

	if d.PowerType != "" {
		if d.PowerIP == "" {
			slog.Warn("Power controller skipped, POWER_IP missing", "device", d.ID)
		} else {
			configs = append(configs, controllers.ControllerConfig{
				Type:           controllers.KindPower,
				Implementation: controllers.ImplTapo,
				Params: map[string]any{
					"ip":       d.PowerIP,
					"user":     d.PowerUser,
					"password": d.PowerPass,
				},
			})
		}
	}

	// Verification follows the remote: adb devices verify over adb,
	// everything with video verifies against captured frames.
	if d.IP != "" && d.AppiumURL == "" {
		configs = append(configs, controllers.ControllerConfig{
			Type:           controllers.KindVerification,
			Implementation: controllers.ImplVerifyADB,
			Params:         map[string]any{"ip": d.IP, "port": d.Port},
		})
	}
	if d.AppiumURL != "" {
		configs = append(configs, controllers.ControllerConfig{
			Type:           controllers.KindVerification,
			Implementation: controllers.ImplVerifyAppium,
			Params:         map[string]any{"url": d.AppiumURL},
		})
	}
	if d.Video != "" {
		for _, impl := range []string{
			controllers.ImplVerifyImage,
			controllers.ImplVerifyText,
			controllers.ImplVerifyVideo,
		} {
			configs = append(configs, controllers.ControllerConfig{
				Type:           controllers.KindVerification,
				Implementation: impl,
			})
		}
	}

	return configs
}

// avImplementation maps a DEVICE{i}_VIDEO value onto an av variant.
func avImplementation(video string) string {
	switch strings.ToLower(video) {
	case "vnc":
		return controllers.ImplVNCStream
	case "camera":
		return controllers.ImplCameraStream
	default:
		return controllers.ImplHDMIStream
	}
}

// remoteImplementation picks the adb variant from the device model.
func remoteImplementation(model string) string {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "mobile") || strings.Contains(lower, "phone") || strings.Contains(lower, "tablet") {
		return controllers.ImplAndroidMobile
	}
	return controllers.ImplAndroidTV
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring unparseable numeric env var", "key", key, "value", v)
		return fallback
	}
	return n
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package controllers holds the per-device capability layer: a typed
// registry of controller implementations plus the small interface each
// capability kind exposes to the executors.
//
// Controllers are constructed once per device and live for the
// device's lifetime. A failed controller construction removes only
// that controller; the device stays usable for its other capabilities.
package controllers

import (
	"context"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// Kind is a controller capability category.
type Kind string

const (
	KindRemote       Kind = "remote"
	KindAV           Kind = "av"
	KindVerification Kind = "verification"
	KindDesktop      Kind = "desktop"
	KindWeb          Kind = "web"
	KindPower        Kind = "power"
	KindAI           Kind = "ai"
)

// Implementations per kind. Unknown pairs are skipped with a warning
// at registry build time.
const (
	ImplAndroidMobile = "android_mobile"
	ImplAndroidTV     = "android_tv"
	ImplAppium        = "appium"
	ImplIRRemote      = "ir_remote"

	ImplHDMIStream   = "hdmi_stream"
	ImplVNCStream    = "vnc_stream"
	ImplCameraStream = "camera_stream"

	ImplVerifyImage  = "image"
	ImplVerifyText   = "text"
	ImplVerifyVideo  = "video"
	ImplVerifyAudio  = "audio"
	ImplVerifyADB    = "adb"
	ImplVerifyAppium = "appium"

	ImplPlaywright = "playwright"
	ImplTapo       = "tapo"
	ImplBash       = "bash"
	ImplAIAgent    = "agent"
)

// Controller is the minimal surface every controller implements.
type Controller interface {
	// Kind returns the capability category.
	Kind() Kind

	// Implementation returns the variant name within the kind.
	Implementation() string
}

// ActionCatalog lets a controller self-describe the actions it can
// execute, keyed by category.
type ActionCatalog interface {
	AvailableActions() map[string][]string
}

// VerificationCatalog lets a controller self-describe the
// verifications it can run, keyed by category.
type VerificationCatalog interface {
	AvailableVerifications() map[string][]string
}

// RemoteController drives a device's input surface: key presses,
// element clicks, coordinate taps and UI introspection.
type RemoteController interface {
	Controller

	// PressKey sends one key (for example "UP", "OK", "BACK").
	PressKey(ctx context.Context, key string) error

	// ClickElement clicks the element whose visible text or selector
	// matches. Selector form depends on the implementation.
	ClickElement(ctx context.Context, target string) error

	// TapCoordinates taps an absolute screen position.
	TapCoordinates(ctx context.Context, x, y int) error

	// DumpUI returns a structured dump of the current screen, or an
	// error when introspection is unavailable.
	DumpUI(ctx context.Context) (string, error)

	// HasUIDump reports whether DumpUI returns structured data.
	HasUIDump() bool
}

// AVController captures the device's video output.
type AVController interface {
	Controller

	// CaptureScreenshot writes a screenshot to local disk and returns
	// its path. May block for a few seconds.
	CaptureScreenshot(ctx context.Context) (string, error)

	// StreamPath returns the device's video stream location.
	StreamPath() string
}

// Outcome is the result of running one verification.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// VerificationController runs one category of verification against
// the live device. Variants other than adb and appium hold a
// non-owning reference to the device's AV controller.
type VerificationController interface {
	Controller

	// Verify runs one verification and reports the outcome. A false
	// outcome is not an error; errors mean the check could not run.
	Verify(ctx context.Context, v datatypes.Verification) (Outcome, error)
}

// WebController automates a browser. One browser process exists per
// host; Connect and Disconnect manage it explicitly.
type WebController interface {
	Controller

	Connect(ctx context.Context) error
	Disconnect() error

	// Navigate opens a URL in the managed page.
	Navigate(ctx context.Context, url string) error

	// ClickElement clicks by visible text or CSS selector.
	ClickElement(ctx context.Context, target string) error

	// DumpElements returns the interactive elements of the page.
	DumpElements(ctx context.Context) (string, error)
}

// PowerController switches the device's power feed.
type PowerController interface {
	Controller

	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error

	// PowerStatus reports "on", "off" or "unknown".
	PowerStatus(ctx context.Context) (string, error)
}

// DesktopController executes commands on the host desktop.
type DesktopController interface {
	Controller

	// Execute runs one desktop command and returns its output.
	Execute(ctx context.Context, command string, args []string) (string, error)
}

// AIController exposes an AI task surface on the device.
type AIController interface {
	Controller

	// ExecuteTask runs a free-form AI task against the device state.
	ExecuteTask(ctx context.Context, prompt string) (string, error)
}

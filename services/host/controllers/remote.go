// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controllers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// subprocessTimeout bounds every controller subprocess call.
const subprocessTimeout = 10 * time.Second

// adbKeycodes maps logical key names to Android keyevent codes.
var adbKeycodes = map[string]string{
	"UP":     "KEYCODE_DPAD_UP",
	"DOWN":   "KEYCODE_DPAD_DOWN",
	"LEFT":   "KEYCODE_DPAD_LEFT",
	"RIGHT":  "KEYCODE_DPAD_RIGHT",
	"OK":     "KEYCODE_DPAD_CENTER",
	"BACK":   "KEYCODE_BACK",
	"HOME":   "KEYCODE_HOME",
	"MENU":   "KEYCODE_MENU",
	"POWER":  "KEYCODE_POWER",
	"VOL_UP": "KEYCODE_VOLUME_UP",
	"VOL_DN": "KEYCODE_VOLUME_DOWN",
}

// adbRemote drives Android devices (mobile and TV) over adb.
type adbRemote struct {
	deviceID string
	impl     string
	serial   string
}

func newADBRemote(deviceID, impl string, params map[string]any) (*adbRemote, error) {
	serial, _ := params["device_ip"].(string)
	if port, ok := params["device_port"].(string); ok && port != "" {
		serial = serial + ":" + port
	}
	if serial == "" {
		return nil, fmt.Errorf("adb remote requires device_ip")
	}
	return &adbRemote{deviceID: deviceID, impl: impl, serial: serial}, nil
}

func (a *adbRemote) Kind() Kind             { return KindRemote }
func (a *adbRemote) Implementation() string { return a.impl }
func (a *adbRemote) HasUIDump() bool        { return true }

func (a *adbRemote) PressKey(ctx context.Context, key string) error {
	keycode, ok := adbKeycodes[strings.ToUpper(key)]
	if !ok {
		keycode = key
	}
	_, err := a.adb(ctx, "shell", "input", "keyevent", keycode)
	return err
}

func (a *adbRemote) ClickElement(ctx context.Context, target string) error {
	// Resolve the element's bounds from a fresh dump, then tap its
	// center. Text match first, resource-id as fallback.
	dump, err := a.DumpUI(ctx)
	if err != nil {
		return fmt.Errorf("ui dump before click failed: %w", err)
	}
	x, y, err := findElementCenter(dump, target)
	if err != nil {
		return err
	}
	return a.TapCoordinates(ctx, x, y)
}

func (a *adbRemote) TapCoordinates(ctx context.Context, x, y int) error {
	_, err := a.adb(ctx, "shell", "input", "tap", fmt.Sprint(x), fmt.Sprint(y))
	return err
}

func (a *adbRemote) DumpUI(ctx context.Context) (string, error) {
	out, err := a.adb(ctx, "exec-out", "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return "", fmt.Errorf("uiautomator dump failed: %w", err)
	}
	return out, nil
}

func (a *adbRemote) adb(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	full := append([]string{"-s", a.serial}, args...)
	cmd := exec.CommandContext(ctx, "adb", full...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("adb %s failed: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return out.String(), nil
}

// AvailableActions implements ActionCatalog.
func (a *adbRemote) AvailableActions() map[string][]string {
	return map[string][]string{
		"remote": {"press_key", "click_element", "tap_coordinates", "dump_ui"},
	}
}

// findElementCenter locates target in a uiautomator dump and returns
// the center of its bounds attribute.
func findElementCenter(dump, target string) (int, int, error) {
	idx := strings.Index(dump, `text="`+target+`"`)
	if idx < 0 {
		idx = strings.Index(dump, `resource-id="`+target+`"`)
	}
	if idx < 0 {
		return 0, 0, fmt.Errorf("element %q not found on screen", target)
	}
	boundsIdx := strings.Index(dump[idx:], `bounds="`)
	if boundsIdx < 0 {
		return 0, 0, fmt.Errorf("element %q has no bounds", target)
	}
	raw := dump[idx+boundsIdx+len(`bounds="`):]
	end := strings.Index(raw, `"`)
	if end < 0 {
		return 0, 0, fmt.Errorf("element %q has malformed bounds", target)
	}
	var x1, y1, x2, y2 int
	if _, err := fmt.Sscanf(raw[:end], "[%d,%d][%d,%d]", &x1, &y1, &x2, &y2); err != nil {
		return 0, 0, fmt.Errorf("element %q has malformed bounds: %w", target, err)
	}
	return (x1 + x2) / 2, (y1 + y2) / 2, nil
}

// irRemote drives set-top boxes over ir-ctl. No UI introspection.
type irRemote struct {
	deviceID string
	irPath   string
	remote   string
}

func newIRRemote(deviceID string, params map[string]any) (*irRemote, error) {
	irPath, _ := params["ir_path"].(string)
	if irPath == "" {
		return nil, fmt.Errorf("ir remote requires ir_path")
	}
	remote, _ := params["ir_type"].(string)
	return &irRemote{deviceID: deviceID, irPath: irPath, remote: remote}, nil
}

func (i *irRemote) Kind() Kind             { return KindRemote }
func (i *irRemote) Implementation() string { return ImplIRRemote }
func (i *irRemote) HasUIDump() bool        { return false }

func (i *irRemote) PressKey(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	scancode := fmt.Sprintf("%s:KEY_%s", i.remote, strings.ToUpper(key))
	cmd := exec.CommandContext(ctx, "ir-ctl", "-d", i.irPath, "--keycode", scancode)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ir-ctl send %s failed: %w: %s", key, err, stderr.String())
	}
	return nil
}

func (i *irRemote) ClickElement(ctx context.Context, target string) error {
	return fmt.Errorf("ir remote cannot click elements")
}

func (i *irRemote) TapCoordinates(ctx context.Context, x, y int) error {
	return fmt.Errorf("ir remote cannot tap coordinates")
}

func (i *irRemote) DumpUI(ctx context.Context) (string, error) {
	return "", fmt.Errorf("ir remote has no ui dump")
}

// AvailableActions implements ActionCatalog.
func (i *irRemote) AvailableActions() map[string][]string {
	return map[string][]string{"remote": {"press_key"}}
}

// appiumRemote drives devices through an Appium server session.
type appiumRemote struct {
	deviceID  string
	serverURL string
	client    *http.Client
	sessionID string
}

func newAppiumRemote(deviceID string, params map[string]any) (*appiumRemote, error) {
	serverURL, _ := params["appium_url"].(string)
	if serverURL == "" {
		return nil, fmt.Errorf("appium remote requires appium_url")
	}
	return &appiumRemote{
		deviceID:  deviceID,
		serverURL: strings.TrimRight(serverURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (a *appiumRemote) Kind() Kind             { return KindRemote }
func (a *appiumRemote) Implementation() string { return ImplAppium }
func (a *appiumRemote) HasUIDump() bool        { return true }

func (a *appiumRemote) PressKey(ctx context.Context, key string) error {
	keycode, ok := adbKeycodes[strings.ToUpper(key)]
	if !ok {
		keycode = key
	}
	return a.post(ctx, "/appium/device/press_keycode",
		fmt.Sprintf(`{"keycode":%q}`, keycode))
}

func (a *appiumRemote) ClickElement(ctx context.Context, target string) error {
	return a.post(ctx, "/element/click",
		fmt.Sprintf(`{"strategy":"accessibility id","selector":%q}`, target))
}

func (a *appiumRemote) TapCoordinates(ctx context.Context, x, y int) error {
	return a.post(ctx, "/touch/perform",
		fmt.Sprintf(`{"action":"tap","options":{"x":%d,"y":%d}}`, x, y))
}

func (a *appiumRemote) DumpUI(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.serverURL+"/source", nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("appium source failed: %w", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (a *appiumRemote) post(ctx context.Context, path, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.serverURL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("appium call %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("appium call %s returned %d", path, resp.StatusCode)
	}
	slog.Debug("Appium call completed", "path", path, "status", resp.StatusCode)
	return nil
}

// AvailableActions implements ActionCatalog.
func (a *appiumRemote) AvailableActions() map[string][]string {
	return map[string][]string{
		"remote": {"press_key", "click_element", "tap_coordinates", "dump_ui"},
	}
}

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
	"os/exec"
	"strings"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// avVerification covers the image, text, video and audio variants.
// All four verify against frames captured through the device's av
// controller; the external matcher tooling does the pixel/OCR work.
type avVerification struct {
	impl        string
	deviceModel string
	av          AVController
}

func newAVVerification(impl, deviceModel string, av AVController) (*avVerification, error) {
	if av == nil {
		return nil, fmt.Errorf("%s verification requires an av controller", impl)
	}
	return &avVerification{impl: impl, deviceModel: deviceModel, av: av}, nil
}

func (v *avVerification) Kind() Kind             { return KindVerification }
func (v *avVerification) Implementation() string { return v.impl }

// Verify captures a frame and hands it to the matcher for this
// variant. A non-matching frame is a false outcome, not an error.
func (v *avVerification) Verify(ctx context.Context, check datatypes.Verification) (Outcome, error) {
	framePath, err := v.av.CaptureScreenshot(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("capture for %s verification failed: %w", v.impl, err)
	}

	args := []string{"--type", v.impl, "--frame", framePath, "--model", v.deviceModel}
	if check.Command != "" {
		args = append(args, "--command", check.Command)
	}
	if check.Expected != "" {
		args = append(args, "--expected", check.Expected)
	}
	for key, val := range check.Params {
		args = append(args, "--param", fmt.Sprintf("%s=%v", key, val))
	}

	cmd := exec.CommandContext(ctx, "verify-frame", args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 1 {
			// Exit 1 is the matcher's "no match" convention.
			return Outcome{Success: false, Message: strings.TrimSpace(out.String())}, nil
		}
		return Outcome{}, fmt.Errorf("%s verification failed to run: %w: %s",
			v.impl, err, stderr.String())
	}
	return Outcome{Success: true, Message: strings.TrimSpace(out.String())}, nil
}

// AvailableVerifications implements VerificationCatalog.
func (v *avVerification) AvailableVerifications() map[string][]string {
	switch v.impl {
	case ImplVerifyImage:
		return map[string][]string{"image": {"waitForImageToAppear", "waitForImageToDisappear"}}
	case ImplVerifyText:
		return map[string][]string{"text": {"waitForTextToAppear", "waitForTextToDisappear"}}
	case ImplVerifyVideo:
		return map[string][]string{"video": {"detectMotion", "waitForVideoToAppear"}}
	case ImplVerifyAudio:
		return map[string][]string{"audio": {"detectAudio", "waitForAudioToAppear"}}
	}
	return nil
}

// adbVerification checks device state over adb (process running,
// activity focused). It does not need the av controller.
type adbVerification struct {
	deviceID    string
	deviceModel string
	serial      string
}

func newADBVerification(deviceID, deviceModel string, params map[string]any) (*adbVerification, error) {
	serial, _ := params["device_ip"].(string)
	if port, ok := params["device_port"].(string); ok && port != "" {
		serial = serial + ":" + port
	}
	if serial == "" {
		return nil, fmt.Errorf("adb verification requires device_ip")
	}
	return &adbVerification{deviceID: deviceID, deviceModel: deviceModel, serial: serial}, nil
}

func (v *adbVerification) Kind() Kind             { return KindVerification }
func (v *adbVerification) Implementation() string { return ImplVerifyADB }

func (v *adbVerification) Verify(ctx context.Context, check datatypes.Verification) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	var args []string
	switch check.Command {
	case "waitForElementToAppear", "element_exists":
		args = []string{"-s", v.serial, "exec-out", "uiautomator", "dump", "/dev/tty"}
	case "activity_focused":
		args = []string{"-s", v.serial, "shell", "dumpsys", "activity", "activities"}
	default:
		return Outcome{}, fmt.Errorf("unknown adb verification command %q", check.Command)
	}

	cmd := exec.CommandContext(ctx, "adb", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return Outcome{}, fmt.Errorf("adb verification failed: %w", err)
	}

	needle := check.Expected
	if needle == "" {
		if text, ok := check.Params["search_term"].(string); ok {
			needle = text
		}
	}
	found := needle != "" && strings.Contains(out.String(), needle)
	return Outcome{
		Success: found,
		Message: fmt.Sprintf("search_term=%q found=%t", needle, found),
	}, nil
}

// AvailableVerifications implements VerificationCatalog.
func (v *adbVerification) AvailableVerifications() map[string][]string {
	return map[string][]string{"adb": {"waitForElementToAppear", "element_exists", "activity_focused"}}
}

// appiumVerification checks element presence through an Appium
// session. It does not need the av controller.
type appiumVerification struct {
	deviceID    string
	deviceModel string
	remote      *appiumRemote
}

func newAppiumVerification(deviceID, deviceModel string, params map[string]any) (*appiumVerification, error) {
	remote, err := newAppiumRemote(deviceID, params)
	if err != nil {
		return nil, err
	}
	return &appiumVerification{deviceID: deviceID, deviceModel: deviceModel, remote: remote}, nil
}

func (v *appiumVerification) Kind() Kind             { return KindVerification }
func (v *appiumVerification) Implementation() string { return ImplVerifyAppium }

func (v *appiumVerification) Verify(ctx context.Context, check datatypes.Verification) (Outcome, error) {
	source, err := v.remote.DumpUI(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("appium verification failed: %w", err)
	}
	needle := check.Expected
	if needle == "" {
		if text, ok := check.Params["search_term"].(string); ok {
			needle = text
		}
	}
	found := needle != "" && strings.Contains(source, needle)
	return Outcome{
		Success: found,
		Message: fmt.Sprintf("search_term=%q found=%t", needle, found),
	}, nil
}

// AvailableVerifications implements VerificationCatalog.
func (v *appiumVerification) AvailableVerifications() map[string][]string {
	return map[string][]string{"appium": {"element_exists", "waitForElementToAppear"}}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package exploration

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/DeviceLab/pkg/logging"
	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/navigation"
	"github.com/AleutianAI/DeviceLab/services/host/planner"
	"github.com/AleutianAI/DeviceLab/services/host/store"
)

// maxEchoedElements caps how many detected elements are kept on the
// context for API echoes.
const maxEchoedElements = 10

// ocrTimeout bounds one OCR pass over a screenshot.
const ocrTimeout = 20 * time.Second

// elementTextPattern pulls visible text attributes out of a structured
// UI dump.
var elementTextPattern = regexp.MustCompile(`(?:text|content-desc)="([^"]+)"`)

// Engine drives the device-facing half of an exploration: strategy
// detection, screenshot capture and upload, planner calls. It owns no
// state beyond what it writes onto the context it is handed.
type Engine struct {
	controls    navigation.DeviceControls
	objects     store.ObjectStore
	planner     planner.Planner
	deviceModel string
	log         *logging.Logger
}

// NewEngine creates an engine for one device.
func NewEngine(controls navigation.DeviceControls, objects store.ObjectStore, p planner.Planner, deviceModel string, log *logging.Logger) *Engine {
	return &Engine{
		controls:    controls,
		objects:     objects,
		planner:     p,
		deviceModel: deviceModel,
		log:         log,
	}
}

// DetectStrategy is phase 0: inspect the device's controllers and
// introspection ability, decide the exploration strategy and record it
// on the context.
func (e *Engine) DetectStrategy(ctx context.Context, ec *datatypes.ExplorationContext) error {
	if web := e.controls.Web(); web != nil {
		ec.Strategy = datatypes.StrategyClickWithSelectors
		ec.HasDumpUI = true
		if dump, err := web.DumpElements(ctx); err == nil {
			ec.AvailableElements = extractElements(dump)
		}
		return nil
	}

	remote := e.controls.Remote()
	if remote == nil {
		return fmt.Errorf("exploration: device has no remote or web controller")
	}

	if !remote.HasUIDump() {
		ec.Strategy = datatypes.StrategyDpadWithScreenshot
		ec.HasDumpUI = false
		return nil
	}

	ec.HasDumpUI = true
	dump, err := remote.DumpUI(ctx)
	if err != nil {
		// Introspection claimed but flaky: fall back to the blind
		// strategy rather than failing the whole exploration.
		e.log.Warn("ui dump failed during strategy detection", "error", err)
		ec.Strategy = datatypes.StrategyDpadWithScreenshot
		ec.HasDumpUI = false
		return nil
	}

	elements := extractElements(dump)
	ec.AvailableElements = elements
	if strings.Contains(dump, "bounds=") || strings.Contains(dump, "resource-id=") {
		ec.Strategy = datatypes.StrategyClickWithSelectors
	} else {
		ec.Strategy = datatypes.StrategyClickWithText
	}
	return nil
}

// AnalyzeAndPlan is phase 1: screenshot the current screen, upload it,
// ask the planner for a structure proposal and store the sanitised
// plan on the context.
func (e *Engine) AnalyzeAndPlan(ctx context.Context, ec *datatypes.ExplorationContext) error {
	if e.planner == nil {
		return fmt.Errorf("exploration: no planner configured (missing API key)")
	}
	av := e.controls.AV()
	if av == nil {
		return fmt.Errorf("exploration: device has no av controller for screenshots")
	}
	localPath, err := av.CaptureScreenshot(ctx)
	if err != nil {
		return fmt.Errorf("exploration: screenshot capture: %w", err)
	}

	url, err := e.objects.UploadNavigationScreenshot(ctx, localPath,
		ec.UserInterfaceName, filepath.Base(localPath))
	if err != nil {
		return fmt.Errorf("exploration: screenshot upload: %w", err)
	}
	ec.ScreenshotURL = url

	plan, err := e.planner.PlanExploration(ctx, planner.PlanRequest{
		ScreenshotURL:  url,
		DeviceModel:    e.deviceModel,
		Strategy:       ec.Strategy,
		OriginalPrompt: ec.OriginalPrompt,
	})
	if err != nil {
		return err
	}

	ec.Plan = plan
	ec.MenuType = plan.MenuType
	ec.PredictedItems = CleanNodeNames(plan.Items)
	if plan.Strategy != "" {
		ec.Strategy = plan.Strategy
	}

	e.log.Info("exploration plan ready",
		"menu_type", ec.MenuType,
		"predicted_items", len(ec.PredictedItems),
		"strategy", ec.Strategy)
	return nil
}

// CaptureAndUpload screenshots the device and uploads the image under
// the userinterface's navigation prefix, returning the public URL.
func (e *Engine) CaptureAndUpload(ctx context.Context, ec *datatypes.ExplorationContext, filename string) (string, error) {
	av := e.controls.AV()
	if av == nil {
		return "", fmt.Errorf("exploration: device has no av controller")
	}
	localPath, err := av.CaptureScreenshot(ctx)
	if err != nil {
		return "", err
	}
	if filename == "" {
		filename = filepath.Base(localPath)
	}
	return e.objects.UploadNavigationScreenshot(ctx, localPath, ec.UserInterfaceName, filename)
}

// PressKey sends one key through the device's remote controller.
func (e *Engine) PressKey(ctx context.Context, key string) error {
	remote := e.controls.Remote()
	if remote == nil {
		return fmt.Errorf("exploration: device has no remote controller")
	}
	return remote.PressKey(ctx, key)
}

// ClickElement clicks by text or selector, preferring the web
// controller when one exists.
func (e *Engine) ClickElement(ctx context.Context, target string) error {
	if web := e.controls.Web(); web != nil {
		return web.ClickElement(ctx, target)
	}
	if remote := e.controls.Remote(); remote != nil {
		return remote.ClickElement(ctx, target)
	}
	return fmt.Errorf("exploration: device has no controller able to click")
}

// DumpOrOCR returns the best available textual view of the current
// screen: a native UI dump when the device has one, else OCR text from
// a fresh screenshot. Both may legitimately come back empty.
func (e *Engine) DumpOrOCR(ctx context.Context) string {
	if remote := e.controls.Remote(); remote != nil && remote.HasUIDump() {
		if dump, err := remote.DumpUI(ctx); err == nil {
			return dump
		}
	}
	av := e.controls.AV()
	if av == nil {
		return ""
	}
	localPath, err := av.CaptureScreenshot(ctx)
	if err != nil {
		return ""
	}
	return e.ocrText(ctx, localPath)
}

// ocrText shells out to tesseract. OCR being unavailable is not an
// error; the caller just gets no text.
func (e *Engine) ocrText(ctx context.Context, imagePath string) string {
	ctx, cancel := context.WithTimeout(ctx, ocrTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "tesseract", imagePath, "stdout").Output()
	if err != nil {
		e.log.Warn("ocr unavailable", "error", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}

// extractElements pulls up to maxEchoedElements visible texts from a
// UI dump.
func extractElements(dump string) []string {
	matches := elementTextPattern.FindAllStringSubmatch(dump, -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		text := strings.TrimSpace(m[1])
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
		if len(out) == maxEchoedElements {
			break
		}
	}
	return out
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package navigation

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/DeviceLab/services/host/controllers"
	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// DeviceControls is the slice of the controller registry the runners
// need. *controllers.Registry satisfies it.
type DeviceControls interface {
	Remote() controllers.RemoteController
	AV() controllers.AVController
	Web() controllers.WebController
	Power() controllers.PowerController
	AI() controllers.AIController
	Verifications() []controllers.VerificationController
	VerificationFor(verificationType string) controllers.VerificationController
}

// ActionRunner maps action commands onto a device's controllers.
type ActionRunner struct {
	controls DeviceControls
}

// NewActionRunner creates a runner over a device's controls.
func NewActionRunner(controls DeviceControls) *ActionRunner {
	return &ActionRunner{controls: controls}
}

// Run executes one action and then honours its wait_time.
func (r *ActionRunner) Run(ctx context.Context, action datatypes.Action) error {
	if err := r.dispatch(ctx, action); err != nil {
		return err
	}
	if action.WaitTimeMs > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(action.WaitTimeMs) * time.Millisecond):
		}
	}
	return nil
}

// RunSet executes a list of actions in order, stopping at the first
// failure.
func (r *ActionRunner) RunSet(ctx context.Context, actions []datatypes.Action) error {
	for i, action := range actions {
		if err := r.Run(ctx, action); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, action.Command, err)
		}
	}
	return nil
}

func (r *ActionRunner) dispatch(ctx context.Context, action datatypes.Action) error {
	switch action.Command {
	case "press_key":
		remote := r.controls.Remote()
		if remote == nil {
			return ErrNoRemoteController
		}
		return remote.PressKey(ctx, stringParam(action.Params, "key"))

	case "click_element":
		target := firstStringParam(action.Params, "element_id", "selector", "text", "target")
		if web := r.controls.Web(); web != nil {
			return web.ClickElement(ctx, target)
		}
		remote := r.controls.Remote()
		if remote == nil {
			return ErrNoRemoteController
		}
		return remote.ClickElement(ctx, target)

	case "tap_coordinates":
		remote := r.controls.Remote()
		if remote == nil {
			return ErrNoRemoteController
		}
		return remote.TapCoordinates(ctx,
			intParam(action.Params, "x"), intParam(action.Params, "y"))

	case "navigate", "open_url":
		web := r.controls.Web()
		if web == nil {
			return fmt.Errorf("navigation: device has no web controller")
		}
		return web.Navigate(ctx, stringParam(action.Params, "url"))

	case "capture_screenshot":
		av := r.controls.AV()
		if av == nil {
			return fmt.Errorf("navigation: device has no av controller")
		}
		_, err := av.CaptureScreenshot(ctx)
		return err

	case "power_on", "power_off":
		power := r.controls.Power()
		if power == nil {
			return fmt.Errorf("navigation: device has no power controller")
		}
		if action.Command == "power_on" {
			return power.PowerOn(ctx)
		}
		return power.PowerOff(ctx)

	case "execute_task":
		ai := r.controls.AI()
		if ai == nil {
			return fmt.Errorf("navigation: device has no ai controller")
		}
		_, err := ai.ExecuteTask(ctx, stringParam(action.Params, "prompt"))
		return err

	case "wait":
		ms := intParam(action.Params, "duration_ms")
		if ms <= 0 {
			ms = intParam(action.Params, "duration")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return nil
		}

	case datatypes.CommandEnterSubtree, datatypes.CommandExitSubtree:
		// Position jumps, not device commands. The step loop resolves
		// them before actions run; reaching here is harmless.
		return nil

	default:
		return &UnknownCommandError{Command: action.Command}
	}
}

// VerificationRunner routes verifications to the matching controller.
type VerificationRunner struct {
	controls DeviceControls
}

// NewVerificationRunner creates a runner over a device's controls.
func NewVerificationRunner(controls DeviceControls) *VerificationRunner {
	return &VerificationRunner{controls: controls}
}

// Run executes one verification. A verification with an explicit type
// goes to that controller; otherwise the first verification controller
// on the device runs it.
func (r *VerificationRunner) Run(ctx context.Context, v datatypes.Verification) (controllers.Outcome, error) {
	var controller controllers.VerificationController
	if v.VerificationType != "" {
		controller = r.controls.VerificationFor(v.VerificationType)
	} else if all := r.controls.Verifications(); len(all) > 0 {
		controller = all[0]
	}
	if controller == nil {
		return controllers.Outcome{}, fmt.Errorf(
			"navigation: no verification controller for type %q", v.VerificationType)
	}
	return controller.Verify(ctx, v)
}

// RunAll runs a node's verifications under its pass condition and
// returns nil when the node is confirmed.
func (r *VerificationRunner) RunAll(ctx context.Context, nodeID string, verifications []datatypes.Verification, passCondition string) error {
	if len(verifications) == 0 {
		return nil
	}
	var failures []string
	passed := 0
	for _, v := range verifications {
		outcome, err := r.Run(ctx, v)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", v.Command, err))
			continue
		}
		if outcome.Success {
			passed++
			if passCondition == datatypes.PassConditionAny {
				return nil
			}
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s", v.Command, outcome.Message))
	}

	if passCondition == datatypes.PassConditionAny {
		return &VerificationFailedError{NodeID: nodeID, PassCondition: passCondition, Failures: failures}
	}
	if passed == len(verifications) {
		return nil
	}
	return &VerificationFailedError{NodeID: nodeID, PassCondition: passCondition, Failures: failures}
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func firstStringParam(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringParam(params, key); s != "" {
			return s
		}
	}
	return ""
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

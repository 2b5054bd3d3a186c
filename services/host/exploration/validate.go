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
	"strings"
	"time"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// recoveryTimeout bounds a recovery navigation back to the start node.
const recoveryTimeout = 2 * time.Minute

// recoveryPollInterval is how often recovery polls the execution.
const recoveryPollInterval = 250 * time.Millisecond

// itemOutcome is the result of validating one item against the device.
type itemOutcome struct {
	status   string // one of the datatypes.Validation* values
	evidence *datatypes.NodeVerificationData
}

// ValidateNextItem is one phase 2b step: drive the device along the
// next item's edge, record what the screen showed, stamp the validation
// status onto the stored edge and return to the start position. A
// failed recovery ends the whole phase in validation_failed.
func (x *Executor) ValidateNextItem(ctx context.Context) error {
	x.mu.Lock()
	if x.state != datatypes.ExplorationAwaitingValidation {
		from := x.state
		x.mu.Unlock()
		return &InvalidTransitionError{From: from, To: datatypes.ExplorationValidating}
	}
	x.state = datatypes.ExplorationValidating
	ec := x.ec
	idx := ec.ValidationIdx
	if idx >= len(x.items) {
		x.state = datatypes.ExplorationValidationComplete
		x.mu.Unlock()
		x.log.Info("validation complete", "items", len(x.items))
		return nil
	}
	item := x.items[idx]
	ec.CurrentStep = fmt.Sprintf("validating %s (%d/%d)", item.clean, idx+1, len(x.items))
	x.mu.Unlock()

	var outcome itemOutcome
	var err error
	if ec.Strategy == datatypes.StrategyDpadWithScreenshot {
		outcome, err = x.validateDpadItem(ctx, ec, item)
	} else {
		outcome, err = x.validateClickItem(ctx, ec, item)
	}
	if err != nil {
		// Recovery failed; the device is lost and the phase cannot
		// continue.
		stopped := &ValidationStoppedError{Item: item.clean, Err: err}
		x.recordStep(item.clean, "validate", false, err.Error())
		x.mu.Lock()
		ec.FailedItems = append(ec.FailedItems, item.clean)
		ec.Error = stopped.Error()
		x.state = datatypes.ExplorationValidationFailed
		ec.UpdatedAt = time.Now()
		x.mu.Unlock()
		return stopped
	}

	if stampErr := x.stampValidation(ctx, ec, item, outcome.status); stampErr != nil {
		return x.fail(stampErr)
	}

	success := outcome.status != datatypes.ValidationFailed
	x.recordStep(item.clean, "validate", success, outcome.status)

	x.mu.Lock()
	if success {
		ec.CompletedItems = append(ec.CompletedItems, item.clean)
	} else {
		ec.FailedItems = append(ec.FailedItems, item.clean)
	}
	if outcome.evidence != nil {
		ec.VerificationData = append(ec.VerificationData, *outcome.evidence)
	}
	ec.ValidationIdx++
	if ec.ValidationIdx >= len(x.items) {
		x.state = datatypes.ExplorationValidationComplete
	} else {
		x.state = datatypes.ExplorationAwaitingValidation
	}
	ec.UpdatedAt = time.Now()
	x.mu.Unlock()
	return nil
}

// validateClickItem clicks the item, records the destination screen,
// then backs out and confirms the start screen is visible again. The
// error return means recovery itself failed.
func (x *Executor) validateClickItem(ctx context.Context, ec *datatypes.ExplorationContext, item itemPlan) (itemOutcome, error) {
	target := item.raw
	if selector, ok := ec.ItemSelectors[item.raw]; ok && selector != "" {
		target = selector
	}
	if err := x.engine.ClickElement(ctx, target); err != nil {
		x.log.Warn("item click failed", "item", item.clean, "error", err)
		return itemOutcome{status: datatypes.ValidationFailed}, nil
	}
	x.settleDelay(ctx)

	evidence := x.collectEvidence(ctx, ec, item)

	if err := x.engine.PressKey(ctx, keyBack); err != nil {
		x.log.Warn("back press failed", "item", item.clean, "error", err)
	}
	x.settleDelay(ctx)

	if x.atStartScreen(ctx, ec) {
		return itemOutcome{status: datatypes.ValidationSuccess, evidence: evidence}, nil
	}

	// One more BACK covers apps that opened an intermediate screen.
	_ = x.engine.PressKey(ctx, keyBack)
	x.settleDelay(ctx)
	if x.atStartScreen(ctx, ec) {
		return itemOutcome{status: datatypes.ValidationFailedRecovered, evidence: evidence}, nil
	}

	if err := x.recoverToStart(ctx, ec); err != nil {
		return itemOutcome{}, fmt.Errorf("lost position after %s: %w", item.clean, err)
	}
	return itemOutcome{status: datatypes.ValidationFailedRecovered, evidence: evidence}, nil
}

// validateDpadItem moves focus one step along the chain and, when the
// item has a screen node, opens it with OK, records the screen and
// backs out to the focus layer. Focus position carries over between
// items, so no return to start happens here.
func (x *Executor) validateDpadItem(ctx context.Context, ec *datatypes.ExplorationContext, item itemPlan) (itemOutcome, error) {
	if err := x.engine.PressKey(ctx, item.direction); err != nil {
		return itemOutcome{status: datatypes.ValidationFailed}, nil
	}
	x.settleDelay(ctx)

	if item.screenNodeID == "" {
		return itemOutcome{status: datatypes.ValidationSuccess}, nil
	}

	if err := x.engine.PressKey(ctx, keyOK); err != nil {
		return itemOutcome{status: datatypes.ValidationFailed}, nil
	}
	x.settleDelay(ctx)

	evidence := x.collectEvidence(ctx, ec, item)

	if err := x.engine.PressKey(ctx, keyBack); err != nil {
		// Blind device and BACK did not register; a second BACK is the
		// only cheap recovery before giving up on the whole run.
		if err := x.engine.PressKey(ctx, keyBack); err != nil {
			return itemOutcome{}, fmt.Errorf("back out of %s: %w", item.clean, err)
		}
		x.settleDelay(ctx)
		return itemOutcome{status: datatypes.ValidationFailedRecovered, evidence: evidence}, nil
	}
	x.settleDelay(ctx)
	return itemOutcome{status: datatypes.ValidationSuccess, evidence: evidence}, nil
}

// collectEvidence screenshots and dumps the current screen for
// phase 2c. Failures degrade to partial or missing evidence rather
// than failing validation.
func (x *Executor) collectEvidence(ctx context.Context, ec *datatypes.ExplorationContext, item itemPlan) *datatypes.NodeVerificationData {
	if item.screenNodeID == "" {
		return nil
	}
	evidence := &datatypes.NodeVerificationData{
		NodeID:    item.screenNodeID,
		NodeLabel: item.clean,
	}
	if url, err := x.engine.CaptureAndUpload(ctx, ec, item.clean+".png"); err == nil {
		evidence.ScreenshotURL = url
	} else {
		x.log.Warn("evidence screenshot failed", "item", item.clean, "error", err)
	}
	if text := x.engine.DumpOrOCR(ctx); text != "" {
		if ec.HasDumpUI {
			evidence.Dump = text
		} else {
			evidence.OCRText = text
		}
	}
	return evidence
}

// atStartScreen checks whether the start screen is visible again. The
// first selected item anchors the check; a destination screen can
// mention other item names, so only when the first item has no usable
// text do the remaining items count as evidence. On devices with no
// text at all the check passes optimistically.
func (x *Executor) atStartScreen(ctx context.Context, ec *datatypes.ExplorationContext) bool {
	text := x.engine.DumpOrOCR(ctx)
	if text == "" {
		return true
	}
	lower := strings.ToLower(text)
	if len(ec.SelectedItems) > 0 {
		if first := strings.TrimSpace(ec.SelectedItems[0]); first != "" {
			return strings.Contains(lower, strings.ToLower(first))
		}
	}
	for _, raw := range ec.SelectedItems {
		if strings.Contains(lower, strings.ToLower(raw)) {
			return true
		}
	}
	return false
}

// recoverToStart drives the navigation executor back to the start node
// and waits for the run to finish.
func (x *Executor) recoverToStart(ctx context.Context, ec *datatypes.ExplorationContext) error {
	startNodeID, err := x.findStartNode(ctx, ec)
	if err != nil {
		return err
	}
	execID, err := x.nav.ExecuteNavigation(ctx, ec.TreeID, ec.TeamID, &datatypes.ExecuteNavigationRequest{
		DeviceID:     x.deviceID,
		TargetNodeID: startNodeID,
	})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(recoveryTimeout)
	for time.Now().Before(deadline) {
		record, err := x.nav.GetExecutionStatus(execID)
		if err != nil {
			return err
		}
		if record.Terminal() {
			if record.Status == datatypes.ExecutionError {
				return fmt.Errorf("recovery navigation failed: %s", record.Error)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(recoveryPollInterval):
		}
	}
	return fmt.Errorf("recovery navigation timed out after %s", recoveryTimeout)
}

// stampValidation writes the outcome onto the first action of both
// directions of the item's edges and persists them.
func (x *Executor) stampValidation(ctx context.Context, ec *datatypes.ExplorationContext, item itemPlan, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var changed []datatypes.Edge
	for _, edge := range []*datatypes.Edge{item.chainEdge, item.enterEdge} {
		if edge == nil {
			continue
		}
		for s := range edge.ActionSets {
			if len(edge.ActionSets[s].Actions) == 0 {
				continue
			}
			edge.ActionSets[s].Actions[0].ValidationStatus = status
			edge.ActionSets[s].Actions[0].ValidatedAt = now
		}
		changed = append(changed, *edge)
	}
	if len(changed) == 0 {
		return nil
	}
	if _, err := x.st.SaveEdgesBatch(ctx, ec.TreeID, changed, ec.TeamID); err != nil {
		return fmt.Errorf("exploration: stamp validation: %w", err)
	}
	return nil
}

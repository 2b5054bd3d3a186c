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

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/store"
)

// StartNodeVerification is phase 2c: propose one verification per
// explored screen node from the evidence collected during validation.
// Proposals wait for operator approval.
func (x *Executor) StartNodeVerification() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.transitionLocked(datatypes.ExplorationAwaitingNodeVerification); err != nil {
		return err
	}

	ec := x.ec
	ec.SuggestedVerifications = nil
	for _, data := range ec.VerificationData {
		v, ok := x.suggestVerification(ec, data)
		if !ok {
			continue
		}
		ec.SuggestedVerifications = append(ec.SuggestedVerifications, datatypes.SuggestedVerification{
			NodeID:       data.NodeID,
			NodeLabel:    data.NodeLabel,
			Verification: v,
		})
	}
	x.log.Info("node verifications suggested", "count", len(ec.SuggestedVerifications))
	return nil
}

// suggestVerification derives one verification from the evidence: an
// element-existence check when the device can introspect, a text
// reference check from OCR on blind dpad devices.
func (x *Executor) suggestVerification(ec *datatypes.ExplorationContext, data datatypes.NodeVerificationData) (datatypes.Verification, bool) {
	if ec.Strategy != datatypes.StrategyDpadWithScreenshot {
		anchor := firstDumpText(data.Dump)
		if anchor == "" {
			anchor = data.NodeLabel
		}
		return datatypes.Verification{
			Command:          "element_exists",
			VerificationType: "adb",
			Params:           map[string]any{"search_term": anchor},
		}, true
	}

	anchor := firstLine(data.OCRText)
	if anchor == "" {
		return datatypes.Verification{}, false
	}
	return datatypes.Verification{
		Command:          "waitForTextToAppear",
		VerificationType: "text",
		Params: map[string]any{
			"text": anchor,
			"area": map[string]any{"full_screen": true},
		},
	}, true
}

// ApproveNodeVerifications applies the operator-approved subset: text
// verifications get a named reference saved first, then all touched
// nodes are updated in one batch.
func (x *Executor) ApproveNodeVerifications(ctx context.Context, req *datatypes.ApproveNodeVerificationsRequest) error {
	x.mu.Lock()
	if x.state != datatypes.ExplorationAwaitingNodeVerification {
		from := x.state
		x.mu.Unlock()
		return &InvalidTransitionError{From: from, To: datatypes.ExplorationNodeVerificationComplete}
	}
	ec := x.ec
	x.mu.Unlock()

	nodes, err := x.st.GetTreeNodes(ctx, ec.TreeID, ec.TeamID)
	if err != nil {
		return x.fail(fmt.Errorf("exploration: list tree nodes: %w", err))
	}
	byID := make(map[string]*datatypes.Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].NodeID] = &nodes[i]
	}

	var changed []datatypes.Node
	for _, approved := range req.ApprovedVerifications {
		node, ok := byID[approved.NodeID]
		if !ok {
			x.log.Warn("approved verification for unknown node", "node_id", approved.NodeID)
			continue
		}
		v := approved.Verification
		if v.Command == "" {
			continue
		}

		if v.VerificationType == "text" {
			refName := fmt.Sprintf("%s_%s_text", ec.UserInterfaceName, CleanNodeName(approved.NodeLabel))
			area, _ := v.Params["area"].(map[string]any)
			if err := x.st.SaveReference(ctx, store.Reference{
				Name:              refName,
				UserInterfaceName: ec.UserInterfaceName,
				Type:              "text",
				TeamID:            ec.TeamID,
				Area:              area,
			}); err != nil {
				return x.fail(fmt.Errorf("exploration: save text reference: %w", err))
			}
			if v.Params == nil {
				v.Params = map[string]any{}
			}
			v.Params["reference_name"] = refName
		}

		node.Verifications = append(node.Verifications, v)
		changed = append(changed, *node)
	}

	if len(changed) > 0 {
		if _, err := x.st.SaveNodesBatch(ctx, ec.TreeID, changed, ec.TeamID); err != nil {
			return x.fail(fmt.Errorf("exploration: apply verifications: %w", err))
		}
		x.invalidateTree(ctx, ec)
	}

	x.log.Info("node verifications applied", "approved", len(changed))
	return x.transition(datatypes.ExplorationNodeVerificationComplete)
}

// Finalize is phase 3: strip the temp suffix from everything this
// exploration created, making the structure permanent. Returns how
// many nodes and edges were renamed.
func (x *Executor) Finalize(ctx context.Context) (int, int, error) {
	x.mu.Lock()
	if x.state != datatypes.ExplorationNodeVerificationComplete {
		from := x.state
		x.mu.Unlock()
		return 0, 0, &InvalidTransitionError{From: from, To: datatypes.ExplorationFinalized}
	}
	ec := x.ec
	x.mu.Unlock()

	nodes, edges, err := x.stripTempLabels(ctx, ec.TreeID, ec.TeamID)
	if err != nil {
		return 0, 0, x.fail(err)
	}
	x.invalidateTree(ctx, ec)
	x.settleDelay(ctx)

	x.log.Info("exploration finalized", "nodes_renamed", nodes, "edges_renamed", edges)
	if err := x.transition(datatypes.ExplorationFinalized); err != nil {
		return nodes, edges, err
	}
	return nodes, edges, nil
}

// Cancel aborts the exploration and deletes everything it created.
// Edges touching deleted nodes cascade in the store.
func (x *Executor) Cancel(ctx context.Context) error {
	x.mu.Lock()
	if x.state == datatypes.ExplorationIdle {
		x.mu.Unlock()
		return &InvalidTransitionError{From: datatypes.ExplorationIdle, To: datatypes.ExplorationCancelled}
	}
	ec := x.ec
	x.mu.Unlock()

	if ec != nil {
		for _, nodeID := range ec.CreatedNodeIDs {
			if err := x.st.DeleteNode(ctx, ec.TreeID, nodeID, ec.TeamID); err != nil {
				x.log.Warn("cancel cleanup: node delete failed", "node_id", nodeID, "error", err)
			}
		}
		x.invalidateTree(ctx, ec)
	}

	x.mu.Lock()
	x.state = datatypes.ExplorationCancelled
	x.items = nil
	x.mu.Unlock()
	x.log.Info("exploration cancelled")
	return nil
}

// CleanupTemp removes temp-labelled leftovers from a tree outside any
// live exploration, for crashed or abandoned runs. Returns how many
// nodes and edges were deleted.
func (x *Executor) CleanupTemp(ctx context.Context, treeID, teamID string) (int, int, error) {
	nodes, err := x.st.GetTreeNodes(ctx, treeID, teamID)
	if err != nil {
		return 0, 0, fmt.Errorf("exploration: list tree nodes: %w", err)
	}
	removedNodes := 0
	for _, n := range nodes {
		if !strings.HasSuffix(n.Label, datatypes.TempLabelSuffix) {
			continue
		}
		if err := x.st.DeleteNode(ctx, treeID, n.NodeID, teamID); err != nil {
			return removedNodes, 0, fmt.Errorf("exploration: delete temp node %s: %w", n.NodeID, err)
		}
		removedNodes++
	}

	edges, err := x.st.GetTreeEdges(ctx, treeID, teamID)
	if err != nil {
		return removedNodes, 0, fmt.Errorf("exploration: list tree edges: %w", err)
	}
	removedEdges := 0
	for _, e := range edges {
		if !tempEdge(&e) {
			continue
		}
		if err := x.st.DeleteEdge(ctx, treeID, e.EdgeID, teamID); err != nil {
			return removedNodes, removedEdges, fmt.Errorf("exploration: delete temp edge %s: %w", e.EdgeID, err)
		}
		removedEdges++
	}

	if rootID, err := x.cache.ResolveRootTreeID(ctx, treeID, teamID); err == nil {
		x.cache.Invalidate(rootID, teamID)
		x.nav.ClearPreviewCache()
	}
	x.log.Info("temp cleanup done", "tree_id", treeID, "nodes", removedNodes, "edges", removedEdges)
	return removedNodes, removedEdges, nil
}

// stripTempLabels renames temp-labelled nodes and edge action sets in
// place, batching the writes.
func (x *Executor) stripTempLabels(ctx context.Context, treeID, teamID string) (int, int, error) {
	nodes, err := x.st.GetTreeNodes(ctx, treeID, teamID)
	if err != nil {
		return 0, 0, fmt.Errorf("exploration: list tree nodes: %w", err)
	}
	var changedNodes []datatypes.Node
	for _, n := range nodes {
		if !strings.HasSuffix(n.Label, datatypes.TempLabelSuffix) {
			continue
		}
		n.Label = strings.TrimSuffix(n.Label, datatypes.TempLabelSuffix)
		changedNodes = append(changedNodes, n)
	}
	if len(changedNodes) > 0 {
		if _, err := x.st.SaveNodesBatch(ctx, treeID, changedNodes, teamID); err != nil {
			return 0, 0, fmt.Errorf("exploration: finalize nodes: %w", err)
		}
	}

	edges, err := x.st.GetTreeEdges(ctx, treeID, teamID)
	if err != nil {
		return len(changedNodes), 0, fmt.Errorf("exploration: list tree edges: %w", err)
	}
	var changedEdges []datatypes.Edge
	for _, e := range edges {
		if !tempEdge(&e) {
			continue
		}
		e.Label = strings.TrimSuffix(e.Label, datatypes.TempLabelSuffix)
		for s := range e.ActionSets {
			e.ActionSets[s].Label = strings.TrimSuffix(e.ActionSets[s].Label, datatypes.TempLabelSuffix)
		}
		changedEdges = append(changedEdges, e)
	}
	if len(changedEdges) > 0 {
		if _, err := x.st.SaveEdgesBatch(ctx, treeID, changedEdges, teamID); err != nil {
			return len(changedNodes), 0, fmt.Errorf("exploration: finalize edges: %w", err)
		}
	}
	return len(changedNodes), len(changedEdges), nil
}

// tempEdge reports whether the edge carries a temp marker on its own
// label or on any action set label.
func tempEdge(e *datatypes.Edge) bool {
	if strings.HasSuffix(e.Label, datatypes.TempLabelSuffix) {
		return true
	}
	for _, set := range e.ActionSets {
		if strings.HasSuffix(set.Label, datatypes.TempLabelSuffix) {
			return true
		}
	}
	return false
}

// firstLine returns the first non-empty line of text.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// firstDumpText returns the first visible text attribute of a UI dump.
func firstDumpText(dump string) string {
	if m := elementTextPattern.FindStringSubmatch(dump); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

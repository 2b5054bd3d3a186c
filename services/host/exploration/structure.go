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
	"github.com/google/uuid"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// Dpad keys used by generated focus chains.
const (
	keyRight = "RIGHT"
	keyLeft  = "LEFT"
	keyDown  = "DOWN"
	keyUp    = "UP"
	keyOK    = "OK"
	keyBack  = "BACK"
)

// nodeSpacing positions generated nodes on the editor canvas so they
// do not stack on top of each other.
const nodeSpacing = 180.0

// buildClickStructure creates one screen node per selected item plus a
// bidirectional edge from the start node: forward click, reverse BACK.
// Labels carry the temp suffix until finalization.
func (x *Executor) buildClickStructure(ec *datatypes.ExplorationContext, startNodeID string) ([]datatypes.Node, []datatypes.Edge, []itemPlan) {
	var nodes []datatypes.Node
	var edges []datatypes.Edge
	var items []itemPlan

	for i, raw := range ec.SelectedItems {
		clean := CleanNodeName(raw)
		if clean == "" {
			continue
		}
		nodeID := uuid.NewString()
		nodes = append(nodes, datatypes.Node{
			NodeID:   nodeID,
			Label:    clean + datatypes.TempLabelSuffix,
			NodeType: datatypes.NodeTypeScreen,
			Position: datatypes.Position{X: float64(i+1) * nodeSpacing, Y: nodeSpacing},
		})

		forwardID := uuid.NewString()
		edge := datatypes.Edge{
			EdgeID:             uuid.NewString(),
			SourceNodeID:       startNodeID,
			TargetNodeID:       nodeID,
			DefaultActionSetID: forwardID,
			ActionSets: []datatypes.ActionSet{
				{
					ID:      forwardID,
					Label:   "goto_" + clean + datatypes.TempLabelSuffix,
					Actions: []datatypes.Action{x.clickAction(ec, raw)},
				},
				{
					ID:      forwardID + "_reverse",
					Actions: []datatypes.Action{pressAction(keyBack)},
				},
			},
		}
		edges = append(edges, edge)
		items = append(items, itemPlan{
			raw:          raw,
			clean:        clean,
			screenNodeID: nodeID,
			chainEdge:    &edges[len(edges)-1],
		})
	}
	return nodes, edges, items
}

// clickAction builds the forward action for a click strategy item,
// preferring a stable selector when detection recorded one.
func (x *Executor) clickAction(ec *datatypes.ExplorationContext, raw string) datatypes.Action {
	params := map[string]any{"text": raw}
	if selector, ok := ec.ItemSelectors[raw]; ok && selector != "" {
		params["selector"] = selector
	}
	return datatypes.Action{Command: "click_element", Params: params}
}

// buildDpadStructure creates the dual-layer structure for blind dpad
// devices: a focus chain mirroring the menu layout, plus a screen node
// behind OK for every item whose screen was selected.
//
// Row 0 runs horizontally from the start node, split into a right arm
// and a left arm per the plan's items_left_of_home. Later rows chain
// DOWN from the last focus of the previous row.
func (x *Executor) buildDpadStructure(ec *datatypes.ExplorationContext, startNodeID string) ([]datatypes.Node, []datatypes.Edge, []itemPlan) {
	var nodes []datatypes.Node
	var edges []datatypes.Edge
	var items []itemPlan

	rows := x.planRows(ec)
	screenWanted := screenSelection(ec)

	for row, rowItems := range rows {
		prevFocus := startNodeID
		if row > 0 && len(items) > 0 {
			// Vertical rows descend from the last focus node built so
			// far, matching how a dpad walks a grid.
			prevFocus = items[len(items)-1].focusNodeID
		}
		for col, entry := range rowItems {
			direction, reverse := dpadDirections(row, entry.left)

			focusID := uuid.NewString()
			nodes = append(nodes, datatypes.Node{
				NodeID:   focusID,
				Label:    entry.clean + "_focus" + datatypes.TempLabelSuffix,
				NodeType: datatypes.NodeTypeScreen,
				Position: datatypes.Position{
					X: float64(col+1) * nodeSpacing,
					Y: float64(row+1) * nodeSpacing,
				},
			})

			forwardID := uuid.NewString()
			edges = append(edges, datatypes.Edge{
				EdgeID:             uuid.NewString(),
				SourceNodeID:       prevFocus,
				TargetNodeID:       focusID,
				DefaultActionSetID: forwardID,
				ActionSets: []datatypes.ActionSet{
					{
						ID:      forwardID,
						Label:   "focus_" + entry.clean + datatypes.TempLabelSuffix,
						Actions: []datatypes.Action{pressAction(direction)},
					},
					{
						ID:      forwardID + "_reverse",
						Actions: []datatypes.Action{pressAction(reverse)},
					},
				},
			})
			plan := itemPlan{
				raw:         entry.raw,
				clean:       entry.clean,
				direction:   direction,
				reverse:     reverse,
				row:         row,
				focusNodeID: focusID,
				chainEdge:   &edges[len(edges)-1],
			}

			if screenWanted[entry.clean] {
				screenID := uuid.NewString()
				nodes = append(nodes, datatypes.Node{
					NodeID:   screenID,
					Label:    entry.clean + datatypes.TempLabelSuffix,
					NodeType: datatypes.NodeTypeScreen,
					Position: datatypes.Position{
						X: float64(col+1) * nodeSpacing,
						Y: float64(row+2) * nodeSpacing,
					},
				})
				enterID := uuid.NewString()
				edges = append(edges, datatypes.Edge{
					EdgeID:             uuid.NewString(),
					SourceNodeID:       focusID,
					TargetNodeID:       screenID,
					DefaultActionSetID: enterID,
					ActionSets: []datatypes.ActionSet{
						{
							ID:      enterID,
							Label:   "open_" + entry.clean + datatypes.TempLabelSuffix,
							Actions: []datatypes.Action{pressAction(keyOK)},
						},
						{
							ID:      enterID + "_reverse",
							Actions: []datatypes.Action{pressAction(keyBack)},
						},
					},
				})
				plan.screenNodeID = screenID
				plan.enterEdge = &edges[len(edges)-1]
			}

			items = append(items, plan)
			prevFocus = focusID
		}
	}
	return nodes, edges, items
}

// rowEntry is one selected item placed in the planned layout.
type rowEntry struct {
	raw   string
	clean string
	left  bool
}

// planRows arranges the selected items into the rows the planner saw.
// Items the plan never mentioned land on row 0.
func (x *Executor) planRows(ec *datatypes.ExplorationContext) [][]rowEntry {
	rowOf := make(map[string]int)
	rowCount := 1
	leftOf := make(map[string]bool)
	if ec.Plan != nil {
		for r, line := range ec.Plan.Lines {
			for _, item := range line {
				rowOf[CleanNodeName(item)] = r
			}
		}
		if len(ec.Plan.Lines) > rowCount {
			rowCount = len(ec.Plan.Lines)
		}
		for _, item := range ec.Plan.ItemsLeftOfHome {
			leftOf[CleanNodeName(item)] = true
		}
	}

	rows := make([][]rowEntry, rowCount)
	for _, raw := range ec.SelectedItems {
		clean := CleanNodeName(raw)
		if clean == "" {
			continue
		}
		r := rowOf[clean]
		rows[r] = append(rows[r], rowEntry{raw: raw, clean: clean, left: leftOf[clean]})
	}
	return rows
}

// dpadDirections returns the forward and reverse keys for a focus
// chain edge.
func dpadDirections(row int, left bool) (string, string) {
	if row > 0 {
		return keyDown, keyUp
	}
	if left {
		return keyLeft, keyRight
	}
	return keyRight, keyLeft
}

// screenSelection resolves which items get a screen node. An empty
// selected_screen_items means every selected item does.
func screenSelection(ec *datatypes.ExplorationContext) map[string]bool {
	wanted := make(map[string]bool)
	if len(ec.SelectedScreenItems) == 0 {
		for _, item := range ec.SelectedItems {
			wanted[CleanNodeName(item)] = true
		}
		return wanted
	}
	for _, item := range ec.SelectedScreenItems {
		wanted[CleanNodeName(item)] = true
	}
	return wanted
}

func pressAction(key string) datatypes.Action {
	return datatypes.Action{Command: "press_key", Params: map[string]any{"key": key}}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pathfind

import (
	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/graph"
)

// ValidationStep is one edge an external KPI runner should exercise.
type ValidationStep struct {
	Edge          *graph.EdgeAttrs         `json:"edge"`
	ActionSet     *datatypes.ActionSet     `json:"action_set"`
	Label         string                   `json:"label"`
	KPIReferences []string                 `json:"kpi_references,omitempty"`
	Verifications []datatypes.Verification `json:"verifications,omitempty"`
}

// ValidationSequence lists the edges whose action sets carry a KPI
// association, one step per unique action set label, forward edges
// preferred over reverse. A KPI association is either a direct
// kpi_references list or, with use_verifications_for_kpi set, the
// target node's verifications. treeID narrows the walk to one tree;
// empty means the whole graph. Virtual edges never carry KPIs and are
// skipped.
func ValidationSequence(g *graph.UnifiedGraph, treeID string) []ValidationStep {
	steps := make([]ValidationStep, 0)
	seen := make(map[string]bool)

	collect := func(wantReverse bool) {
		for _, edge := range g.Edges() {
			if edge.IsVirtual || edge.IsSiblingShortcut || edge.IsReverseEdge != wantReverse {
				continue
			}
			if treeID != "" && edge.TreeID != treeID {
				continue
			}
			set := edge.DefaultActionSet()
			if set == nil || set.Label == "" || seen[set.Label] {
				continue
			}
			step := ValidationStep{
				Edge:          edge,
				ActionSet:     set,
				Label:         set.Label,
				KPIReferences: set.KPIReferences,
			}
			if set.UseVerificationsForKPI {
				if target := g.Node(edge.TargetNodeID); target != nil {
					step.Verifications = target.Verifications
				}
			}
			if len(step.KPIReferences) == 0 && len(step.Verifications) == 0 {
				continue
			}
			seen[set.Label] = true
			steps = append(steps, step)
		}
	}

	collect(false)
	collect(true)
	return steps
}

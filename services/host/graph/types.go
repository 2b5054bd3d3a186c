// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// DefaultEdgeWeight is the pathfinding weight of every edge unless
// the edge data overrides it. Sibling shortcuts and cross-tree virtual
// edges carry the same weight as ordinary edges.
const DefaultEdgeWeight = 1

// NodeAttrs is one graph node: the persisted node attributes plus the
// tree it came from.
type NodeAttrs struct {
	NodeID       string
	Label        string
	NodeType     string
	IsEntryPoint bool

	TreeID    string
	TreeName  string
	TreeDepth int

	// ChildTreeID marks a sub-tree mount point.
	ChildTreeID string

	Verifications             []datatypes.Verification
	VerificationPassCondition string

	Position datatypes.Position
	Data     map[string]any
}

// PassCondition returns the node's verification pass condition,
// defaulting to "all".
func (n *NodeAttrs) PassCondition() string {
	if n.VerificationPassCondition == datatypes.PassConditionAny {
		return datatypes.PassConditionAny
	}
	return datatypes.PassConditionAll
}

// EdgeAttrs is one graph edge: the persisted edge attributes plus the
// direction and classification flags computed at build time.
type EdgeAttrs struct {
	EdgeID       string
	SourceNodeID string
	TargetNodeID string
	EdgeType     string

	TreeID   string
	TreeName string

	// ActionSets is the full list carried by forward edges; reverse
	// edges carry only the reverse set.
	ActionSets         []datatypes.ActionSet
	DefaultActionSetID string
	FinalWaitTime      int

	Weight int

	IsForwardEdge     bool
	IsReverseEdge     bool
	IsSiblingShortcut bool

	// IsVirtual marks ENTER_SUBTREE / EXIT_SUBTREE stitching edges.
	// For those, SourceTreeID != TargetTreeID always holds.
	IsVirtual    bool
	SourceTreeID string
	TargetTreeID string

	// IsConditional marks an edge whose default action set id is
	// shared with at least one sibling edge from the same source.
	// SiblingNodeIDs is precomputed at build time so pathfinding and
	// execution never re-scan the source's out-edges.
	IsConditional  bool
	SiblingNodeIDs []string

	EnableSiblingShortcuts bool

	Data map[string]any
}

// DefaultActionSet returns the action set referenced by
// DefaultActionSetID, or nil.
func (e *EdgeAttrs) DefaultActionSet() *datatypes.ActionSet {
	for i := range e.ActionSets {
		if e.ActionSets[i].ID == e.DefaultActionSetID {
			return &e.ActionSets[i]
		}
	}
	return nil
}

// HasActions reports whether the edge's effective action set carries
// any actions. Reverse edges check their single carried set.
func (e *EdgeAttrs) HasActions() bool {
	if e.IsReverseEdge {
		return len(e.ActionSets) > 0 && len(e.ActionSets[0].Actions) > 0
	}
	if set := e.DefaultActionSet(); set != nil {
		return len(set.Actions) > 0
	}
	return false
}

// edgeKey identifies one directed edge in the adjacency map.
type edgeKey struct {
	source string
	target string
}

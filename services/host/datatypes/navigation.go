// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the host service.
//
// This file contains the navigation-tree records: trees, nodes, edges,
// action sets, actions and verifications. These mirror what the
// persistence layer stores; behavior lives in the graph, cache and
// executor packages.
package datatypes

import "strings"

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxTreeDepth bounds how deep a tree hierarchy may nest.
	MaxTreeDepth = 5

	// EntryNodeLabel marks an entry point by label (case-insensitive).
	EntryNodeLabel = "ENTRY"

	// NodeTypeEntry marks an entry point by node type.
	NodeTypeEntry = "entry"

	// NodeTypeScreen is the ordinary screen node type.
	NodeTypeScreen = "screen"

	// TempLabelSuffix marks nodes and edges created by an exploration
	// that has not been finalized. It is a lifecycle marker on labels
	// only, never part of identity.
	TempLabelSuffix = "_temp"
)

// Edge types. ENTER_SUBTREE and EXIT_SUBTREE are virtual edges added
// during cross-tree stitching; SIBLING_SHORTCUT edges are synthesized
// between children of a parent that opted in.
const (
	EdgeTypeNavigation      = "navigation"
	EdgeTypeEnterSubtree    = "ENTER_SUBTREE"
	EdgeTypeExitSubtree     = "EXIT_SUBTREE"
	EdgeTypeSiblingShortcut = "SIBLING_SHORTCUT"
)

// Verification pass conditions.
const (
	PassConditionAll = "all"
	PassConditionAny = "any"
)

// Synthetic commands carried by virtual cross-tree edges.
const (
	CommandEnterSubtree = "enter_subtree"
	CommandExitSubtree  = "exit_subtree"
)

// =============================================================================
// Records
// =============================================================================

// NavigationTree identifies one tree in a hierarchy. A root tree plus
// its descendants (mounted under nodes via ChildTreeID) form the
// hierarchy covered by one unified graph.
type NavigationTree struct {
	TreeID          string `json:"tree_id"`
	ParentTreeID    string `json:"parent_tree_id,omitempty"`
	ParentNodeID    string `json:"parent_node_id,omitempty"`
	IsRootTree      bool   `json:"is_root_tree"`
	TreeDepth       int    `json:"tree_depth"`
	UserInterfaceID string `json:"userinterface_id"`
	Name            string `json:"name"`
}

// Position is a node's layout position in the editor UI.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Verification is a single check run against the live device, for
// example an image match or a wait-for-text.
type Verification struct {
	Command          string         `json:"command"`
	VerificationType string         `json:"verification_type,omitempty"`
	Params           map[string]any `json:"params,omitempty"`
	Expected         string         `json:"expected,omitempty"`
}

// Node is one screen (or entry point) of a navigation tree.
type Node struct {
	NodeID   string         `json:"node_id"`
	Label    string         `json:"label"`
	NodeType string         `json:"node_type,omitempty"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data,omitempty"`

	// ChildTreeID mounts a sub-tree beneath this node.
	ChildTreeID string `json:"child_tree_id,omitempty"`

	Verifications             []Verification `json:"verifications,omitempty"`
	VerificationPassCondition string         `json:"verification_pass_condition,omitempty"`
}

// IsEntryPoint reports whether the node is an entry point, either by
// type or by the ENTRY label convention.
func (n *Node) IsEntryPoint() bool {
	return n.NodeType == NodeTypeEntry || strings.EqualFold(n.Label, EntryNodeLabel)
}

// PassCondition returns the verification pass condition, defaulting
// to "all" when unset.
func (n *Node) PassCondition() string {
	if n.VerificationPassCondition == PassConditionAny {
		return PassConditionAny
	}
	return PassConditionAll
}

// Action is one executable device command. The controller layer gives
// the command meaning; here it is purely structural.
type Action struct {
	Command    string         `json:"command"`
	ActionType string         `json:"action_type,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	WaitTimeMs int            `json:"wait_time,omitempty"`

	// Validation bookkeeping written during exploration phase 2b.
	ValidationStatus string `json:"validation_status,omitempty"`
	ValidatedAt      string `json:"validated_at,omitempty"`
	ActualResult     string `json:"actual_result,omitempty"`
}

// Validation statuses stamped onto actions by edge validation.
const (
	ValidationSuccess         = "success"
	ValidationFailed          = "failed"
	ValidationFailedRecovered = "failed_recovered"
)

// ActionSet is a labelled bundle of actions with retry and failure
// fallbacks. Its ID is the identity conditional edges share.
type ActionSet struct {
	ID             string   `json:"id"`
	Label          string   `json:"label,omitempty"`
	Actions        []Action `json:"actions"`
	RetryActions   []Action `json:"retry_actions,omitempty"`
	FailureActions []Action `json:"failure_actions,omitempty"`

	KPIReferences          []string `json:"kpi_references,omitempty"`
	UseVerificationsForKPI bool     `json:"use_verifications_for_kpi,omitempty"`

	// EnableSiblingShortcuts is a legacy location for the edge-level
	// flag; the edge field takes precedence when set.
	EnableSiblingShortcuts bool `json:"enable_sibling_shortcuts,omitempty"`
}

// Edge connects two nodes. By convention action_sets[0] is the forward
// direction and action_sets[1] the reverse direction.
type Edge struct {
	EdgeID             string         `json:"edge_id"`
	SourceNodeID       string         `json:"source_node_id"`
	TargetNodeID       string         `json:"target_node_id"`
	ActionSets         []ActionSet    `json:"action_sets,omitempty"`
	DefaultActionSetID string         `json:"default_action_set_id,omitempty"`
	FinalWaitTime      int            `json:"final_wait_time,omitempty"`
	EdgeType           string         `json:"edge_type,omitempty"`
	Data               map[string]any `json:"data,omitempty"`

	// EnableSiblingShortcuts opts the edge's children into shortcut
	// expansion. Nil means "not set here"; fall back to action_sets[0].
	EnableSiblingShortcuts *bool `json:"enable_sibling_shortcuts,omitempty"`

	Label string `json:"label,omitempty"`
}

// DefaultActionSet returns the action set referenced by
// DefaultActionSetID, or nil when it does not exist.
func (e *Edge) DefaultActionSet() *ActionSet {
	for i := range e.ActionSets {
		if e.ActionSets[i].ID == e.DefaultActionSetID {
			return &e.ActionSets[i]
		}
	}
	return nil
}

// ReverseActionSet returns action_sets[1] when present.
func (e *Edge) ReverseActionSet() *ActionSet {
	if len(e.ActionSets) > 1 {
		return &e.ActionSets[1]
	}
	return nil
}

// SiblingShortcutsEnabled resolves the opt-in flag: the edge-level
// field wins, then action_sets[0]'s flag.
func (e *Edge) SiblingShortcutsEnabled() bool {
	if e.EnableSiblingShortcuts != nil {
		return *e.EnableSiblingShortcuts
	}
	if len(e.ActionSets) > 0 {
		return e.ActionSets[0].EnableSiblingShortcuts
	}
	return false
}

// TreeData bundles one tree with its nodes and edges, the unit the
// graph builder and the populate endpoint consume.
type TreeData struct {
	TreeID   string         `json:"tree_id"`
	TreeInfo NavigationTree `json:"tree_info"`
	Nodes    []Node         `json:"nodes"`
	Edges    []Edge         `json:"edges"`
}

// UserInterface is the persistence record a tree hierarchy belongs to.
type UserInterface struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Models []string `json:"models,omitempty"`
}

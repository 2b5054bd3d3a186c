// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes: request and response types for the host HTTP
// surface. Validation beyond struct tags (for example the target
// id/label exclusivity) lives on the types as Validate methods so
// handlers stay thin.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// requestValidate is the shared validator for request datatypes.
var requestValidate = validator.New()

// =============================================================================
// Navigation
// =============================================================================

// ExecuteNavigationRequest starts an async navigation on a device.
// Exactly one of TargetNodeID and TargetNodeLabel must be set.
type ExecuteNavigationRequest struct {
	DeviceID          string `json:"device_id" validate:"required"`
	TargetNodeID      string `json:"target_node_id,omitempty"`
	TargetNodeLabel   string `json:"target_node_label,omitempty"`
	CurrentNodeID     string `json:"current_node_id,omitempty"`
	UserInterfaceName string `json:"userinterface_name,omitempty"`
	ImageSourceURL    string `json:"image_source_url,omitempty"`
	AsyncExecution    bool   `json:"async_execution,omitempty"`

	// TaskID enables the completion callback to the server when
	// AsyncExecution is set by the caller.
	TaskID string `json:"task_id,omitempty"`
}

// Validate enforces required fields and the id/label exclusivity.
func (r *ExecuteNavigationRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return err
	}
	if r.TargetNodeID == "" && r.TargetNodeLabel == "" {
		return fmt.Errorf("one of target_node_id or target_node_label is required")
	}
	if r.TargetNodeID != "" && r.TargetNodeLabel != "" {
		return fmt.Errorf("target_node_id and target_node_label are mutually exclusive")
	}
	return nil
}

// ExecuteNavigationResponse acknowledges an accepted navigation.
type ExecuteNavigationResponse struct {
	Success     bool   `json:"success"`
	ExecutionID string `json:"execution_id"`
	Message     string `json:"message,omitempty"`
}

// VerifyNodeRequest runs a node's verifications on the live device.
type VerifyNodeRequest struct {
	DeviceID          string `json:"device_id" validate:"required"`
	NodeID            string `json:"node_id" validate:"required"`
	UserInterfaceName string `json:"userinterface_name" validate:"required"`
}

// Validate checks required fields.
func (r *VerifyNodeRequest) Validate() error {
	return requestValidate.Struct(r)
}

// =============================================================================
// Cache
// =============================================================================

// PopulateCacheRequest populates the unified cache from a provided
// hierarchy instead of fetching it from persistence.
type PopulateCacheRequest struct {
	AllTreesData    []TreeData `json:"all_trees_data" validate:"required,min=1"`
	ForceRepopulate bool       `json:"force_repopulate,omitempty"`
}

// Validate checks required fields.
func (r *PopulateCacheRequest) Validate() error {
	return requestValidate.Struct(r)
}

// UpdateNodeCacheRequest patches one node into a cached graph.
type UpdateNodeCacheRequest struct {
	TreeID string `json:"tree_id" validate:"required"`
	Node   Node   `json:"node" validate:"required"`
}

// Validate checks required fields.
func (r *UpdateNodeCacheRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return err
	}
	if r.Node.NodeID == "" {
		return fmt.Errorf("node.node_id is required")
	}
	return nil
}

// UpdateEdgeCacheRequest patches one edge into a cached graph.
type UpdateEdgeCacheRequest struct {
	TreeID string `json:"tree_id" validate:"required"`
	Edge   Edge   `json:"edge" validate:"required"`
}

// Validate checks required fields.
func (r *UpdateEdgeCacheRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return err
	}
	if r.Edge.SourceNodeID == "" || r.Edge.TargetNodeID == "" {
		return fmt.Errorf("edge.source_node_id and edge.target_node_id are required")
	}
	return nil
}

// CacheStatusResponse reports whether a unified graph is cached.
type CacheStatusResponse struct {
	Success    bool   `json:"success"`
	Exists     bool   `json:"exists"`
	TreeID     string `json:"tree_id,omitempty"`
	NodesCount int    `json:"nodes_count"`
	EdgesCount int    `json:"edges_count"`
}

// =============================================================================
// Exploration
// =============================================================================

// StartExplorationRequest begins an AI exploration on a device.
type StartExplorationRequest struct {
	DeviceID          string `json:"device_id" validate:"required"`
	TreeID            string `json:"tree_id" validate:"required"`
	UserInterfaceName string `json:"userinterface_name" validate:"required"`
	StartNode         string `json:"start_node,omitempty"`
	OriginalPrompt    string `json:"original_prompt,omitempty"`
}

// Validate checks required fields.
func (r *StartExplorationRequest) Validate() error {
	return requestValidate.Struct(r)
}

// ContinueExplorationRequest approves the plan and selects items.
type ContinueExplorationRequest struct {
	DeviceID            string   `json:"device_id" validate:"required"`
	SelectedItems       []string `json:"selected_items" validate:"required,min=1"`
	SelectedScreenItems []string `json:"selected_screen_items,omitempty"`
}

// Validate checks required fields.
func (r *ContinueExplorationRequest) Validate() error {
	return requestValidate.Struct(r)
}

// ExplorationStepRequest is the body shared by the parameterless
// state-machine transitions (start-validation, validate-next-item,
// start-node-verification, finalize-structure, cancel-exploration).
type ExplorationStepRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
}

// Validate checks required fields.
func (r *ExplorationStepRequest) Validate() error {
	return requestValidate.Struct(r)
}

// ApproveNodeVerificationsRequest applies operator-approved
// verifications to explored nodes.
type ApproveNodeVerificationsRequest struct {
	DeviceID              string                  `json:"device_id" validate:"required"`
	ApprovedVerifications []SuggestedVerification `json:"approved_verifications"`
}

// Validate checks required fields.
func (r *ApproveNodeVerificationsRequest) Validate() error {
	return requestValidate.Struct(r)
}

// CleanupTempRequest removes `_temp` leftovers from a tree outside a
// live exploration. DeviceID is optional; any device can run the
// cleanup since it only touches persistence and the shared cache.
type CleanupTempRequest struct {
	TreeID   string `json:"tree_id" validate:"required"`
	DeviceID string `json:"device_id,omitempty"`
}

// Validate checks required fields.
func (r *CleanupTempRequest) Validate() error {
	return requestValidate.Struct(r)
}

// =============================================================================
// Script execution
// =============================================================================

// ScriptExecuteRequest fires a script run on a device. The run is
// always asynchronous; when TaskID is set, completion is posted to the
// server callback URL.
type ScriptExecuteRequest struct {
	DeviceID       string         `json:"device_id" validate:"required"`
	ScriptName     string         `json:"script_name" validate:"required"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	AsyncExecution bool           `json:"async_execution,omitempty"`
	TaskID         string         `json:"task_id,omitempty"`
}

// Validate checks required fields.
func (r *ScriptExecuteRequest) Validate() error {
	return requestValidate.Struct(r)
}

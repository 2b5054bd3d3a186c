// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// Execution statuses for async navigation and script runs.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionError     = "error"
)

// ExecutionRecord is the in-memory status of one async execution.
// Records live for the process lifetime and are polled over HTTP;
// nothing about them is persisted.
type ExecutionRecord struct {
	ExecutionID     string    `json:"execution_id"`
	Status          string    `json:"status"`
	TreeID          string    `json:"tree_id,omitempty"`
	TargetNodeID    string    `json:"target_node_id,omitempty"`
	TargetNodeLabel string    `json:"target_node_label,omitempty"`
	Progress        int       `json:"progress"`
	Message         string    `json:"message,omitempty"`
	StartTime       time.Time `json:"start_time"`
	Result          any       `json:"result,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Terminal reports whether the record will no longer change.
func (r *ExecutionRecord) Terminal() bool {
	return r.Status == ExecutionCompleted || r.Status == ExecutionError
}

// NavigationStep summarizes one executed edge in a completed
// navigation result.
type NavigationStep struct {
	From       string `json:"from"`
	To         string `json:"to"`
	EdgeID     string `json:"edge_id,omitempty"`
	ActionSet  string `json:"action_set,omitempty"`
	ActionsRun int    `json:"actions_run"`
	Recovered  bool   `json:"recovered,omitempty"`
}

// NavigationResult is the terminal result of a navigation execution.
type NavigationResult struct {
	Success     bool             `json:"success"`
	CurrentNode string           `json:"current_node,omitempty"`
	Steps       []NavigationStep `json:"steps,omitempty"`
	Error       string           `json:"error,omitempty"`
}

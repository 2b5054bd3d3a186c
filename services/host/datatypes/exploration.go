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

// =============================================================================
// Exploration state machine
// =============================================================================

// ExplorationState enumerates the states of the per-device exploration
// executor. Transitions are strictly linear; see the exploration package
// for the allowed transition table.
type ExplorationState string

const (
	ExplorationIdle                     ExplorationState = "idle"
	ExplorationAnalysis                 ExplorationState = "analysis"
	ExplorationAwaitingApproval         ExplorationState = "awaiting_approval"
	ExplorationStructureCreated         ExplorationState = "structure_created"
	ExplorationAwaitingValidation       ExplorationState = "awaiting_validation"
	ExplorationValidating               ExplorationState = "validating"
	ExplorationValidationComplete       ExplorationState = "validation_complete"
	ExplorationValidationFailed         ExplorationState = "validation_failed"
	ExplorationAwaitingNodeVerification ExplorationState = "awaiting_node_verification"
	ExplorationNodeVerificationComplete ExplorationState = "node_verification_complete"
	ExplorationFinalized                ExplorationState = "finalized"
	ExplorationCancelled                ExplorationState = "cancelled"
	ExplorationFailed                   ExplorationState = "failed"
)

// Exploration strategies chosen by phase 0 capability detection.
const (
	StrategyClickWithSelectors = "click_with_selectors"
	StrategyClickWithText      = "click_with_text"
	StrategyDpadWithScreenshot = "dpad_with_screenshot"
)

// Menu layout types reported by the AI planner.
const (
	MenuTypeHorizontal = "horizontal"
	MenuTypeVertical   = "vertical"
	MenuTypeGrid       = "grid"
	MenuTypeMixed      = "mixed"
)

// =============================================================================
// Planner output
// =============================================================================

// ExplorationPlan is the structure proposed by the external AI planner
// from a screenshot of the device's current screen.
type ExplorationPlan struct {
	MenuType        string     `json:"menu_type"`
	Lines           [][]string `json:"lines"`
	Items           []string   `json:"items"`
	ItemsLeftOfHome []string   `json:"items_left_of_home,omitempty"`
	Strategy        string     `json:"strategy,omitempty"`
	PredictedDepth  int        `json:"predicted_depth,omitempty"`
	Reasoning       string     `json:"reasoning,omitempty"`
}

// =============================================================================
// Context
// =============================================================================

// StepRecord is one entry of the exploration step history.
type StepRecord struct {
	Step      int       `json:"step"`
	Item      string    `json:"item,omitempty"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NodeVerificationData accumulates per-node evidence during phase 2b,
// consumed by phase 2c to suggest verifications.
type NodeVerificationData struct {
	NodeID        string `json:"node_id"`
	NodeLabel     string `json:"node_label"`
	Dump          string `json:"dump,omitempty"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
	OCRText       string `json:"ocr_text,omitempty"`
}

// SuggestedVerification is a phase 2c proposal awaiting operator
// approval.
type SuggestedVerification struct {
	NodeID       string       `json:"node_id"`
	NodeLabel    string       `json:"node_label"`
	Verification Verification `json:"verification"`
}

// ExplorationContext is the mutable per-device exploration state. All
// mutation goes through the exploration executor's lock.
type ExplorationContext struct {
	ExplorationID     string `json:"exploration_id"`
	OriginalPrompt    string `json:"original_prompt,omitempty"`
	TreeID            string `json:"tree_id"`
	UserInterfaceName string `json:"userinterface_name"`
	TeamID            string `json:"team_id"`
	StartNode         string `json:"start_node"`

	Strategy          string   `json:"strategy,omitempty"`
	HasDumpUI         bool     `json:"has_dump_ui"`
	AvailableElements []string `json:"available_elements,omitempty"`

	Plan           *ExplorationPlan `json:"plan,omitempty"`
	PredictedItems []string         `json:"predicted_items,omitempty"`
	ItemSelectors  map[string]string `json:"item_selectors,omitempty"`
	ScreenshotURL  string           `json:"screenshot_url,omitempty"`
	MenuType       string           `json:"menu_type,omitempty"`

	SelectedItems       []string `json:"selected_items,omitempty"`
	SelectedScreenItems []string `json:"selected_screen_items,omitempty"`

	CurrentStep    string       `json:"current_step,omitempty"`
	TotalSteps     int          `json:"total_steps"`
	ValidationIdx  int          `json:"validation_index"`
	CompletedItems []string     `json:"completed_items,omitempty"`
	FailedItems    []string     `json:"failed_items,omitempty"`
	StepHistory    []StepRecord `json:"step_history,omitempty"`

	CreatedNodeIDs []string `json:"created_node_ids,omitempty"`
	CreatedEdgeIDs []string `json:"created_edge_ids,omitempty"`

	VerificationData       []NodeVerificationData  `json:"node_verification_data,omitempty"`
	SuggestedVerifications []SuggestedVerification `json:"suggested_verifications,omitempty"`

	LastSuccess string    `json:"last_success,omitempty"`
	LastFailure string    `json:"last_failure,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

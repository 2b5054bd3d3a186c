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
	"fmt"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// startableStates are the states a new exploration may begin from.
var startableStates = map[datatypes.ExplorationState]bool{
	datatypes.ExplorationIdle:             true,
	datatypes.ExplorationFinalized:        true,
	datatypes.ExplorationCancelled:        true,
	datatypes.ExplorationFailed:           true,
	datatypes.ExplorationValidationFailed: true,
}

// allowedTransitions is the forward transition table. Cancellation and
// failure are reachable from every non-idle state and are handled
// separately.
var allowedTransitions = map[datatypes.ExplorationState][]datatypes.ExplorationState{
	datatypes.ExplorationIdle:             {datatypes.ExplorationAnalysis},
	datatypes.ExplorationFinalized:        {datatypes.ExplorationAnalysis},
	datatypes.ExplorationCancelled:        {datatypes.ExplorationAnalysis},
	datatypes.ExplorationFailed:           {datatypes.ExplorationAnalysis},
	datatypes.ExplorationValidationFailed: {datatypes.ExplorationAnalysis},

	datatypes.ExplorationAnalysis:         {datatypes.ExplorationAwaitingApproval},
	datatypes.ExplorationAwaitingApproval: {datatypes.ExplorationStructureCreated},
	datatypes.ExplorationStructureCreated: {datatypes.ExplorationAwaitingValidation},
	datatypes.ExplorationAwaitingValidation: {
		datatypes.ExplorationValidating,
	},
	datatypes.ExplorationValidating: {
		datatypes.ExplorationAwaitingValidation,
		datatypes.ExplorationValidationComplete,
		datatypes.ExplorationValidationFailed,
	},
	datatypes.ExplorationValidationComplete:       {datatypes.ExplorationAwaitingNodeVerification},
	datatypes.ExplorationAwaitingNodeVerification: {datatypes.ExplorationNodeVerificationComplete},
	datatypes.ExplorationNodeVerificationComplete: {datatypes.ExplorationFinalized},
}

// InvalidTransitionError is returned when an operation is called in a
// state it is not legal in.
type InvalidTransitionError struct {
	From datatypes.ExplorationState
	To   datatypes.ExplorationState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("exploration: illegal transition %s -> %s", e.From, e.To)
}

// ValidationStoppedError ends phase 2b: the device could not be
// brought back to a usable position after an item, so no further
// items can be validated.
type ValidationStoppedError struct {
	Item string
	Err  error
}

func (e *ValidationStoppedError) Error() string {
	return fmt.Sprintf("exploration: validation stopped at %s: %v", e.Item, e.Err)
}

func (e *ValidationStoppedError) Unwrap() error { return e.Err }

// canTransition reports whether from -> to is in the table. Cancel and
// fail bypass the table for every non-idle state.
func canTransition(from, to datatypes.ExplorationState) bool {
	if to == datatypes.ExplorationCancelled || to == datatypes.ExplorationFailed {
		return from != datatypes.ExplorationIdle
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

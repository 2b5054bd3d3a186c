// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package navigation

import (
	"errors"
	"fmt"
)

// Executor errors.
var (
	// ErrNoRemoteController is returned when a device action needs an
	// input surface the device does not have.
	ErrNoRemoteController = errors.New("navigation: device has no remote controller")

	// ErrNodeNotInGraph is returned when a verification targets a node
	// the cached graph does not contain.
	ErrNodeNotInGraph = errors.New("navigation: node not in graph")
)

// UserInterfaceNotFoundError is returned when a userinterface name
// does not resolve.
type UserInterfaceNotFoundError struct {
	Name   string
	TeamID string
}

func (e *UserInterfaceNotFoundError) Error() string {
	return fmt.Sprintf("navigation: userinterface %q not found for team %s", e.Name, e.TeamID)
}

// NoRootTreeError is returned when a userinterface has no root tree.
type NoRootTreeError struct {
	UserInterfaceID string
}

func (e *NoRootTreeError) Error() string {
	return fmt.Sprintf("navigation: userinterface %s has no root tree", e.UserInterfaceID)
}

// StepFailedError is returned when every action bucket of a step
// failed and the path was aborted.
type StepFailedError struct {
	StepIndex  int
	FromNodeID string
	ToNodeID   string
	Cause      error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("navigation: step %d (%s -> %s) failed: %v",
		e.StepIndex, e.FromNodeID, e.ToNodeID, e.Cause)
}

func (e *StepFailedError) Unwrap() error { return e.Cause }

// VerificationFailedError is returned when a node's verifications did
// not meet its pass condition.
type VerificationFailedError struct {
	NodeID        string
	PassCondition string
	Failures      []string
}

func (e *VerificationFailedError) Error() string {
	return fmt.Sprintf("navigation: node %s failed verification (%s): %v",
		e.NodeID, e.PassCondition, e.Failures)
}

// UnknownCommandError is returned when an action names a command no
// controller can execute.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("navigation: unknown action command %q", e.Command)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds and holds the unified navigation graph: one
// directed graph covering a root navigation tree and every sub-tree
// reachable from it, stitched together with virtual cross-tree edges.
//
// # Shape
//
// The graph is a directed multigraph in spirit (a forward and a
// reverse edge may connect the same pair of screens) but adjacency is
// keyed by (source, target): at most one edge exists per ordered pair.
//
// # Thread Safety
//
// UnifiedGraph is not safe for concurrent mutation. The cache layer
// owns synchronization: builds happen single-writer, reads after
// publication, patches under the cache lock.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building.
var (
	// ErrNodeNotFound is returned when an edge references a node that
	// is not part of the hierarchy.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrEmptyHierarchy is returned when Build receives no trees.
	ErrEmptyHierarchy = errors.New("graph: hierarchy contains no trees")
)

// MissingActionSetError is returned when an edge's default_action_set_id
// does not reference any of its action sets. The build fails fast: a
// dangling default means the tree data is corrupt.
type MissingActionSetError struct {
	EdgeID             string
	DefaultActionSetID string
}

func (e *MissingActionSetError) Error() string {
	return fmt.Sprintf("graph: edge %s references missing default action set %q",
		e.EdgeID, e.DefaultActionSetID)
}

// DepthExceededError is returned when a hierarchy nests deeper than
// the allowed maximum.
type DepthExceededError struct {
	TreeID string
	Depth  int
	Max    int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("graph: tree %s at depth %d exceeds maximum depth %d",
		e.TreeID, e.Depth, e.Max)
}

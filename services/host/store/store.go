// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the persistence and object-store contracts the
// host service depends on. The database itself lives behind an HTTP
// API elsewhere; the host process owns no durable state.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Reference is a named verification asset (for example an OCR text
// region) stored alongside the userinterface.
type Reference struct {
	Name              string         `json:"name"`
	UserInterfaceName string         `json:"userinterface_name"`
	Type              string         `json:"type"`
	TeamID            string         `json:"team_id"`
	R2Path            string         `json:"r2_path,omitempty"`
	R2URL             string         `json:"r2_url,omitempty"`
	Area              map[string]any `json:"area,omitempty"`
}

// NavigationStore is the persistence contract for navigation trees.
// Implementations must be safe for concurrent use. Missing records
// surface as ErrNotFound (possibly wrapped), other failures as plain
// errors; nothing panics across this boundary.
type NavigationStore interface {
	// GetUserInterfaceByName resolves a userinterface by name.
	GetUserInterfaceByName(ctx context.Context, name, teamID string) (*datatypes.UserInterface, error)

	// GetRootTreeForInterface returns the unique root tree of a
	// userinterface.
	GetRootTreeForInterface(ctx context.Context, userInterfaceID, teamID string) (*datatypes.NavigationTree, error)

	// GetTree returns one tree record, used to follow parent links
	// when canonicalising a sub-tree id to its root.
	GetTree(ctx context.Context, treeID, teamID string) (*datatypes.NavigationTree, error)

	// GetFullTree returns a tree with all of its nodes and edges.
	GetFullTree(ctx context.Context, treeID, teamID string) (*datatypes.TreeData, error)

	// GetTreeNodes returns the nodes of a tree.
	GetTreeNodes(ctx context.Context, treeID, teamID string) ([]datatypes.Node, error)

	// GetTreeEdges returns the edges of a tree.
	GetTreeEdges(ctx context.Context, treeID, teamID string) ([]datatypes.Edge, error)

	// SaveNodesBatch upserts nodes in one write.
	SaveNodesBatch(ctx context.Context, treeID string, nodes []datatypes.Node, teamID string) ([]datatypes.Node, error)

	// SaveEdgesBatch upserts edges in one write.
	SaveEdgesBatch(ctx context.Context, treeID string, edges []datatypes.Edge, teamID string) ([]datatypes.Edge, error)

	// DeleteNode removes one node. Edges touching it cascade in the
	// backing database.
	DeleteNode(ctx context.Context, treeID, nodeID, teamID string) error

	// DeleteEdge removes one edge.
	DeleteEdge(ctx context.Context, treeID, edgeID, teamID string) error

	// DeleteTreeCascade removes a tree with all nodes and edges.
	DeleteTreeCascade(ctx context.Context, treeID, teamID string) error

	// SaveReference stores a named verification asset.
	SaveReference(ctx context.Context, ref Reference) error
}

// UploadRequest names one local file and its remote destination.
type UploadRequest struct {
	LocalPath  string `json:"local_path"`
	RemotePath string `json:"remote_path"`
}

// UploadedFile is one successful upload with its public URL.
type UploadedFile struct {
	RemotePath string `json:"remote_path"`
	URL        string `json:"url"`
}

// FailedUpload is one failed upload with the failure reason.
type FailedUpload struct {
	RemotePath string `json:"remote_path"`
	Error      string `json:"error"`
}

// UploadResult aggregates a batch upload.
type UploadResult struct {
	UploadedFiles []UploadedFile `json:"uploaded_files"`
	FailedUploads []FailedUpload `json:"failed_uploads,omitempty"`
}

// ObjectStore uploads screenshots and other artifacts to the shared
// bucket. Implementations must be safe for concurrent use.
type ObjectStore interface {
	// UploadFiles uploads a batch; per-file failures land in
	// FailedUploads rather than aborting the batch.
	UploadFiles(ctx context.Context, files []UploadRequest) (*UploadResult, error)

	// UploadNavigationScreenshot uploads one screenshot under the
	// navigation prefix for a userinterface and returns its URL.
	UploadNavigationScreenshot(ctx context.Context, localPath, userInterfaceName, filename string) (string, error)
}

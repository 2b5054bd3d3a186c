// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/devices"
	"github.com/AleutianAI/DeviceLab/services/host/middleware"
)

// HandleCacheCheck reports whether a unified graph is cached for the
// tree's hierarchy.
func HandleCacheCheck(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)
		treeID := c.Param("tree_id")

		rootID, err := h.Cache.ResolveRootTreeID(c.Request.Context(), treeID, teamID)
		if err != nil {
			fail(c, err)
			return
		}
		status := h.Cache.CheckStatus(rootID, teamID)
		c.JSON(http.StatusOK, datatypes.CacheStatusResponse{
			Success:    true,
			Exists:     status.Cached,
			TreeID:     rootID,
			NodesCount: status.NodeCount,
			EdgesCount: status.EdgeCount,
		})
	}
}

// HandleCacheStatus returns the full cache entry status including TTL
// and staleness.
func HandleCacheStatus(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)

		rootID, err := h.Cache.ResolveRootTreeID(c.Request.Context(), c.Param("tree_id"), teamID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "status": h.Cache.CheckStatus(rootID, teamID)})
	}
}

// HandleCacheUpdateNode patches one node into the cached graph and
// persists nothing; the caller has already written through the server.
func HandleCacheUpdateNode(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)

		var req datatypes.UpdateNodeCacheRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}

		devs := h.Devices()
		if len(devs) == 0 {
			fail(c, devices.ErrDeviceNotFound)
			return
		}
		if err := devs[0].Nav.PatchNode(c.Request.Context(), req.TreeID, teamID, req.Node, 0); err != nil {
			fail(c, err)
			return
		}
		// The graph is shared; every device's preview cache is stale now.
		for _, d := range devs[1:] {
			d.Nav.ClearPreviewCache()
		}

		slog.Info("Cache node patched", "tree_id", req.TreeID, "node_id", req.Node.NodeID)
		c.JSON(http.StatusOK, gin.H{"success": true, "node_id": req.Node.NodeID})
	}
}

// HandleCacheUpdateEdge patches one edge into the cached graph.
func HandleCacheUpdateEdge(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)

		var req datatypes.UpdateEdgeCacheRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}

		devs := h.Devices()
		if len(devs) == 0 {
			fail(c, devices.ErrDeviceNotFound)
			return
		}
		if err := devs[0].Nav.PatchEdge(c.Request.Context(), req.TreeID, teamID, req.Edge); err != nil {
			fail(c, err)
			return
		}
		for _, d := range devs[1:] {
			d.Nav.ClearPreviewCache()
		}

		slog.Info("Cache edge patched",
			"tree_id", req.TreeID,
			"source", req.Edge.SourceNodeID,
			"target", req.Edge.TargetNodeID)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// HandleCachePopulate builds the unified graph from a caller-provided
// hierarchy instead of fetching trees from the server.
func HandleCachePopulate(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)
		treeID := c.Param("tree_id")

		var req datatypes.PopulateCacheRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}

		devs := h.Devices()
		if len(devs) == 0 {
			fail(c, devices.ErrDeviceNotFound)
			return
		}
		entry, rebuilt, err := devs[0].Nav.PopulateFromTrees(c.Request.Context(), teamID, req.AllTreesData, req.ForceRepopulate)
		if err != nil {
			fail(c, err)
			return
		}
		for _, d := range devs {
			d.Nav.ClearPreviewCache()
		}

		slog.Info("Cache populated",
			"tree_id", treeID,
			"root_tree_id", entry.RootTreeID,
			"rebuilt", rebuilt,
			"nodes", entry.Graph.NodeCount(),
			"edges", entry.Graph.EdgeCount())
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"root_tree_id": entry.RootTreeID,
			"rebuilt":      rebuilt,
			"nodes_count":  entry.Graph.NodeCount(),
			"edges_count":  entry.Graph.EdgeCount(),
		})
	}
}

// HandleCacheClear hard-invalidates the cached graph for a tree's
// hierarchy.
func HandleCacheClear(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)
		treeID := c.Param("tree_id")

		rootID, err := h.Cache.ResolveRootTreeID(c.Request.Context(), treeID, teamID)
		if err != nil {
			fail(c, err)
			return
		}
		h.Cache.Invalidate(rootID, teamID)
		for _, d := range h.Devices() {
			d.Nav.ClearPreviewCache()
		}

		slog.Info("Cache cleared", "tree_id", treeID, "root_tree_id", rootID)
		c.JSON(http.StatusOK, gin.H{"success": true, "root_tree_id": rootID})
	}
}

// HandleCacheRefreshTTL extends the lifetime of a cached graph.
func HandleCacheRefreshTTL(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)

		rootID, err := h.Cache.ResolveRootTreeID(c.Request.Context(), c.Param("tree_id"), teamID)
		if err != nil {
			fail(c, err)
			return
		}
		refreshed := h.Cache.RefreshTTL(rootID, teamID)
		c.JSON(http.StatusOK, gin.H{"success": true, "refreshed": refreshed})
	}
}

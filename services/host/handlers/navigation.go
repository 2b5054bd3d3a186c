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
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/devices"
	"github.com/AleutianAI/DeviceLab/services/host/middleware"
)

// HandleExecuteNavigation starts an async navigation on a device and
// answers with the execution id to poll.
func HandleExecuteNavigation(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		treeID := c.Param("tree_id")
		teamID := middleware.TeamID(c)

		var req datatypes.ExecuteNavigationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}
		device, ok := deviceFor(c, h, req.DeviceID)
		if !ok {
			return
		}

		executionID, err := device.Nav.ExecuteNavigation(c.Request.Context(), treeID, teamID, &req)
		if err != nil {
			slog.Error("Navigation start failed",
				"device_id", req.DeviceID, "tree_id", treeID, "error", err)
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.ExecuteNavigationResponse{
			Success:     true,
			ExecutionID: executionID,
			Message:     "navigation started",
		})
	}
}

// HandleExecutionStatus polls one execution record.
func HandleExecutionStatus(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := deviceFor(c, h, c.Query("device_id"))
		if !ok {
			return
		}

		record, err := device.Nav.GetExecutionStatus(c.Param("execution_id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "execution": record})
	}
}

// HandlePreviewPath plans a path without executing it.
func HandlePreviewPath(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := deviceFor(c, h, c.Query("device_id"))
		if !ok {
			return
		}
		teamID := middleware.TeamID(c)

		path, err := device.Nav.PreviewPath(c.Request.Context(),
			c.Param("tree_id"), teamID,
			c.Query("current_node_id"), c.Param("target_node_id"), "")
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"transitions": path,
			"step_count":  len(path),
		})
	}
}

// HandleLoadTree resolves a userinterface and warms the unified graph
// for it.
func HandleLoadTree(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := deviceFor(c, h, c.Query("device_id"))
		if !ok {
			return
		}
		teamID := middleware.TeamID(c)

		result, err := device.Nav.LoadNavigationTree(c.Request.Context(),
			c.Param("userinterface_name"), teamID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "tree": result})
	}
}

// HandleVerifyNode runs a node's stored verifications on the live
// device.
func HandleVerifyNode(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)

		var req datatypes.VerifyNodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}
		device, ok := deviceFor(c, h, req.DeviceID)
		if !ok {
			return
		}

		if err := device.Nav.VerifyNode(c.Request.Context(), teamID, &req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "verified": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "verified": true})
	}
}

// validationSequenceEntry is one edge of the pending-validation view.
type validationSequenceEntry struct {
	EdgeID           string `json:"edge_id"`
	SourceNodeID     string `json:"source_node_id"`
	TargetNodeID     string `json:"target_node_id"`
	Label            string `json:"label,omitempty"`
	ValidationStatus string `json:"validation_status,omitempty"`
	ValidatedAt      string `json:"validated_at,omitempty"`
}

// HandleValidationSequence lists a tree's exploration edges in storage
// order with their validation stamps, so an operator can see what a
// running exploration has and has not validated yet.
func HandleValidationSequence(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)
		treeID := c.Param("tree_id")

		edges, err := h.Store.GetTreeEdges(c.Request.Context(), treeID, teamID)
		if err != nil {
			fail(c, err)
			return
		}

		var sequence []validationSequenceEntry
		for _, edge := range edges {
			entry, include := sequenceEntry(edge)
			if include {
				sequence = append(sequence, entry)
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"tree_id":  treeID,
			"sequence": sequence,
		})
	}
}

// sequenceEntry reduces an edge to its validation view. Only edges
// created by an exploration qualify: either still temp-labelled or
// already stamped with a validation status.
func sequenceEntry(edge datatypes.Edge) (validationSequenceEntry, bool) {
	entry := validationSequenceEntry{
		EdgeID:       edge.EdgeID,
		SourceNodeID: edge.SourceNodeID,
		TargetNodeID: edge.TargetNodeID,
		Label:        edge.Label,
	}
	temp := strings.HasSuffix(edge.Label, datatypes.TempLabelSuffix)
	for _, set := range edge.ActionSets {
		if strings.HasSuffix(set.Label, datatypes.TempLabelSuffix) {
			temp = true
		}
		for _, action := range set.Actions {
			if action.ValidationStatus != "" && entry.ValidationStatus == "" {
				entry.ValidationStatus = action.ValidationStatus
				entry.ValidatedAt = action.ValidatedAt
			}
		}
	}
	return entry, temp || entry.ValidationStatus != ""
}

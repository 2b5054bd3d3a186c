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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/devices"
	"github.com/AleutianAI/DeviceLab/services/host/exploration"
	"github.com/AleutianAI/DeviceLab/services/host/middleware"
	"github.com/AleutianAI/DeviceLab/services/host/observability"
)

// explorationReply writes the uniform state + context envelope.
func explorationReply(c *gin.Context, device *devices.Device) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   device.Explore.State(),
		"context": device.Explore.Context(),
	})
}

// recordTerminalExploration counts an exploration once it lands in a
// terminal state. Called after every mutating transition.
func recordTerminalExploration(m *observability.HostMetrics, device *devices.Device) {
	if m == nil {
		return
	}
	switch state := device.Explore.State(); state {
	case datatypes.ExplorationFinalized,
		datatypes.ExplorationCancelled,
		datatypes.ExplorationFailed,
		datatypes.ExplorationValidationFailed:
		m.RecordExploration(device.ID, string(state))
	}
}

// HandleStartExploration runs phase 0 and 1: strategy detection, a
// screenshot, the planner call. On success the executor waits for plan
// approval.
func HandleStartExploration(h *devices.Host, m *observability.HostMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)

		var req datatypes.StartExplorationRequest
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

		if err := device.Explore.Start(c.Request.Context(), teamID, &req); err != nil {
			slog.Error("Exploration start failed",
				"device_id", req.DeviceID, "tree_id", req.TreeID, "error", err)
			recordTerminalExploration(m, device)
			fail(c, err)
			return
		}
		explorationReply(c, device)
	}
}

// HandleExplorationStatus polls the exploration state machine.
func HandleExplorationStatus(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := deviceFor(c, h, c.Query("device_id"))
		if !ok {
			return
		}

		ec := device.Explore.Context()
		if explorationID := c.Param("exploration_id"); ec == nil || ec.ExplorationID != explorationID {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "no such exploration on this device",
			})
			return
		}
		explorationReply(c, device)
	}
}

// HandleContinueExploration approves the plan, selects items and
// creates the temp structure.
func HandleContinueExploration(h *devices.Host, m *observability.HostMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ContinueExplorationRequest
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

		if err := device.Explore.Continue(c.Request.Context(), &req); err != nil {
			recordTerminalExploration(m, device)
			fail(c, err)
			return
		}
		explorationReply(c, device)
	}
}

// bindStep parses the shared single-field body of the state-machine
// transition routes and resolves the device.
func bindStep(c *gin.Context, h *devices.Host) (*devices.Device, bool) {
	var req datatypes.ExplorationStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return nil, false
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	return deviceFor(c, h, req.DeviceID)
}

// HandleStartValidation arms per-item validation.
func HandleStartValidation(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := bindStep(c, h)
		if !ok {
			return
		}
		if err := device.Explore.StartValidation(); err != nil {
			fail(c, err)
			return
		}
		explorationReply(c, device)
	}
}

// HandleValidateNextItem validates exactly one created item on the
// live device and stamps the outcome onto its edges. When recovery
// fails mid-phase the response names the item validation stopped at.
func HandleValidateNextItem(h *devices.Host, m *observability.HostMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := bindStep(c, h)
		if !ok {
			return
		}
		if err := device.Explore.ValidateNextItem(c.Request.Context()); err != nil {
			recordTerminalExploration(m, device)
			var stopped *exploration.ValidationStoppedError
			if errors.As(err, &stopped) {
				c.JSON(statusFor(err), gin.H{
					"success":            false,
					"error":              err.Error(),
					"validation_stopped": true,
					"failed_at_item":     stopped.Item,
				})
				return
			}
			fail(c, err)
			return
		}
		explorationReply(c, device)
	}
}

// HandleStartNodeVerification computes verification suggestions from
// the evidence gathered during validation.
func HandleStartNodeVerification(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := bindStep(c, h)
		if !ok {
			return
		}
		if err := device.Explore.StartNodeVerification(); err != nil {
			fail(c, err)
			return
		}
		explorationReply(c, device)
	}
}

// HandleApproveNodeVerifications persists the operator-approved subset
// of suggested verifications onto the explored nodes.
func HandleApproveNodeVerifications(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ApproveNodeVerificationsRequest
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

		if err := device.Explore.ApproveNodeVerifications(c.Request.Context(), &req); err != nil {
			fail(c, err)
			return
		}
		explorationReply(c, device)
	}
}

// HandleFinalizeStructure strips the temp suffixes and ends the
// exploration, reporting how much structure became permanent.
func HandleFinalizeStructure(h *devices.Host, m *observability.HostMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := bindStep(c, h)
		if !ok {
			return
		}
		nodes, edges, err := device.Explore.Finalize(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		recordTerminalExploration(m, device)
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"state":         device.Explore.State(),
			"context":       device.Explore.Context(),
			"nodes_renamed": nodes,
			"edges_renamed": edges,
		})
	}
}

// HandleCancelExploration deletes every node the exploration created
// and resets the state machine.
func HandleCancelExploration(h *devices.Host, m *observability.HostMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := bindStep(c, h)
		if !ok {
			return
		}
		if err := device.Explore.Cancel(c.Request.Context()); err != nil {
			fail(c, err)
			return
		}
		recordTerminalExploration(m, device)
		explorationReply(c, device)
	}
}

// HandleCleanupTemp removes temp leftovers from a tree outside a live
// exploration, for example after a host restart mid-exploration.
func HandleCleanupTemp(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := middleware.TeamID(c)

		var req datatypes.CleanupTempRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}

		deviceID := req.DeviceID
		if deviceID == "" && len(h.Devices()) > 0 {
			deviceID = h.Devices()[0].ID
		}
		device, ok := deviceFor(c, h, deviceID)
		if !ok {
			return
		}

		nodes, edges, err := device.Explore.CleanupTemp(c.Request.Context(), req.TreeID, teamID)
		if err != nil {
			fail(c, err)
			return
		}
		slog.Info("Temp structure cleaned",
			"tree_id", req.TreeID, "nodes_removed", nodes, "edges_removed", edges)
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"nodes_removed": nodes,
			"edges_removed": edges,
		})
	}
}

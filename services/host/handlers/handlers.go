// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the host service's HTTP surface. Every
// handler is a closure over the assembled device host; request parsing
// and status-code mapping live here, the behavior lives in the
// navigation and exploration executors.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/DeviceLab/services/host/cache"
	"github.com/AleutianAI/DeviceLab/services/host/devices"
	"github.com/AleutianAI/DeviceLab/services/host/exploration"
	"github.com/AleutianAI/DeviceLab/services/host/graph"
	"github.com/AleutianAI/DeviceLab/services/host/pathfind"
	"github.com/AleutianAI/DeviceLab/services/host/store"
	"github.com/AleutianAI/DeviceLab/services/host/tasks"
)

// statusFor maps executor errors onto HTTP status codes: unknown
// resources are 404, caller mistakes are 400, everything else is 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, devices.ErrDeviceNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, tasks.ErrTaskNotFound),
		errors.Is(err, cache.ErrEntryNotFound),
		errors.Is(err, cache.ErrRootNotResolved),
		errors.Is(err, graph.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, pathfind.ErrNoEntryPoint),
		errors.Is(err, pathfind.ErrNoTarget):
		return http.StatusBadRequest
	}

	var targetNotFound *pathfind.TargetNotFoundError
	if errors.As(err, &targetNotFound) {
		return http.StatusNotFound
	}

	var ambiguous *pathfind.AmbiguousTargetError
	var unreachable *pathfind.PathNotFoundError
	var badTransition *exploration.InvalidTransitionError
	if errors.As(err, &ambiguous) || errors.As(err, &unreachable) || errors.As(err, &badTransition) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// fail writes the uniform error envelope.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
}

// badRequest writes a 400 with a plain message.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
}

// deviceFor resolves a device id or writes the error response itself.
func deviceFor(c *gin.Context, h *devices.Host, deviceID string) (*devices.Device, bool) {
	if deviceID == "" {
		badRequest(c, "device_id is required")
		return nil, false
	}
	device, err := h.Device(deviceID)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return device, true
}

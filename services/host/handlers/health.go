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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/DeviceLab/services/host/devices"
)

// deviceHealth is one device's entry in the health report.
type deviceHealth struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Model            string   `json:"model,omitempty"`
	Capabilities     []string `json:"capabilities"`
	CurrentNode      string   `json:"current_node,omitempty"`
	ExplorationState string   `json:"exploration_state"`
}

// HandleHealth reports the host and its device inventory.
func HandleHealth(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := make([]deviceHealth, 0, len(h.Devices()))
		for _, device := range h.Devices() {
			report = append(report, deviceHealth{
				ID:               device.ID,
				Name:             device.Name,
				Model:            device.Model,
				Capabilities:     device.Capabilities(),
				CurrentNode:      device.Nav.CurrentNode(),
				ExplorationState: string(device.Explore.State()),
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"host":    h.Name,
			"devices": report,
		})
	}
}

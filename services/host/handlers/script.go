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
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/devices"
)

// HandleScriptExecute fires a script run on a device. The run is
// always detached; the response only acknowledges the launch. When the
// request carries a task id, completion is posted back to the server.
func HandleScriptExecute(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ScriptExecuteRequest
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
		if device.Controls.Desktop() == nil {
			badRequest(c, "device has no desktop controller for scripts")
			return
		}

		taskID := ""
		if req.AsyncExecution {
			taskID = req.TaskID
		}
		executionID := h.Runner.Launch(c.Request.Context(), "script "+req.ScriptName, taskID,
			func(ctx context.Context, update func(int, string)) (any, error) {
				output, err := device.RunScript(ctx, req.ScriptName, req.Parameters)
				if err != nil {
					return nil, err
				}
				return map[string]any{"output": output}, nil
			})

		slog.Info("Script launched",
			"device_id", req.DeviceID,
			"script", req.ScriptName,
			"execution_id", executionID)
		c.JSON(http.StatusOK, gin.H{"success": true, "execution_id": executionID})
	}
}

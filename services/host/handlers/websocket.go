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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/DeviceLab/services/host/devices"
)

// executionPollInterval is how often the stream re-reads the record.
const executionPollInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The host runs on a private lab network behind the server; origin
	// checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleExecutionStream streams execution record snapshots over a
// websocket until the execution reaches a terminal state. A polling
// client gets the same data from the status route; this avoids the
// request-per-poll overhead for UIs that watch long navigations.
func HandleExecutionStream(h *devices.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := deviceFor(c, h, c.Query("device_id"))
		if !ok {
			return
		}
		executionID := c.Param("execution_id")
		if _, err := device.Nav.GetExecutionStatus(executionID); err != nil {
			fail(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Websocket upgrade failed", "execution_id", executionID, "error", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(executionPollInterval)
		defer ticker.Stop()

		lastProgress := -1
		lastStatus := ""
		for {
			record, err := device.Nav.GetExecutionStatus(executionID)
			if err != nil {
				_ = conn.WriteJSON(gin.H{"error": err.Error()})
				return
			}
			if record.Progress != lastProgress || record.Status != lastStatus {
				if err := conn.WriteJSON(record); err != nil {
					slog.Debug("Websocket client gone", "execution_id", executionID)
					return
				}
				lastProgress = record.Progress
				lastStatus = record.Status
			}
			if record.Terminal() {
				return
			}

			select {
			case <-ticker.C:
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

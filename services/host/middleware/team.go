// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the host service.
//
// Every tenant-scoped route requires a team_id query parameter; the
// middleware rejects requests without one and stores the value in the
// Gin context for handlers to read via TeamID.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// teamIDKey is the context key the team id is stored under.
const teamIDKey = "devicelab_team_id"

// TeamID returns the team id stored by RequireTeamID, or "" when the
// route did not pass through the middleware.
func TeamID(c *gin.Context) string {
	if v, exists := c.Get(teamIDKey); exists {
		if teamID, ok := v.(string); ok {
			return teamID
		}
	}
	return ""
}

// RequireTeamID rejects requests without a team_id query parameter.
// All persistence and cache operations are tenant-scoped, so a request
// without a team cannot be served meaningfully.
func RequireTeamID() gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := c.Query("team_id")
		if teamID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "team_id query parameter is required",
			})
			return
		}
		c.Set(teamIDKey, teamID)
		c.Next()
	}
}

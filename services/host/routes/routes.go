// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/DeviceLab/services/host/devices"
	"github.com/AleutianAI/DeviceLab/services/host/handlers"
	"github.com/AleutianAI/DeviceLab/services/host/middleware"
	"github.com/AleutianAI/DeviceLab/services/host/observability"
)

// SetupRoutes mounts the host service's HTTP surface. Routes that read
// or write tenant-scoped data sit behind the team middleware; status
// polls and websocket streams only need the execution id.
func SetupRoutes(router *gin.Engine, h *devices.Host, m *observability.HostMetrics) {

	router.GET("/health", handlers.HandleHealth(h))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	navigation := router.Group("/host/navigation")
	{
		navigation.GET("/execution/:execution_id/status", handlers.HandleExecutionStatus(h))
		navigation.GET("/execution/:execution_id/ws", handlers.HandleExecutionStream(h))

		team := navigation.Group("", middleware.RequireTeamID())
		{
			team.POST("/execute/:tree_id", handlers.HandleExecuteNavigation(h))
			team.GET("/preview/:tree_id/:target_node_id", handlers.HandlePreviewPath(h))
			team.GET("/load/:userinterface_name", handlers.HandleLoadTree(h))
			team.POST("/verify-node", handlers.HandleVerifyNode(h))
			team.GET("/validation-sequence/:tree_id", handlers.HandleValidationSequence(h))

			cache := team.Group("/cache")
			{
				cache.GET("/check/:tree_id", handlers.HandleCacheCheck(h))
				cache.GET("/status/:tree_id", handlers.HandleCacheStatus(h))
				cache.POST("/update-node", handlers.HandleCacheUpdateNode(h))
				cache.POST("/update-edge", handlers.HandleCacheUpdateEdge(h))
				cache.POST("/populate/:tree_id", handlers.HandleCachePopulate(h))
				cache.POST("/clear/:tree_id", handlers.HandleCacheClear(h))
				cache.POST("/refresh-ttl/:tree_id", handlers.HandleCacheRefreshTTL(h))
			}
		}
	}

	aiGeneration := router.Group("/host/ai-generation")
	{
		aiGeneration.POST("/start-exploration", middleware.RequireTeamID(), handlers.HandleStartExploration(h, m))
		aiGeneration.GET("/exploration-status/:exploration_id", handlers.HandleExplorationStatus(h))
		aiGeneration.POST("/continue-exploration", handlers.HandleContinueExploration(h, m))
		aiGeneration.POST("/start-validation", handlers.HandleStartValidation(h))
		aiGeneration.POST("/validate-next-item", handlers.HandleValidateNextItem(h, m))
		aiGeneration.POST("/start-node-verification", handlers.HandleStartNodeVerification(h))
		aiGeneration.POST("/approve-node-verifications", handlers.HandleApproveNodeVerifications(h))
		aiGeneration.POST("/finalize-structure", handlers.HandleFinalizeStructure(h, m))
		aiGeneration.POST("/cancel-exploration", handlers.HandleCancelExploration(h, m))
		aiGeneration.POST("/cleanup-temp", middleware.RequireTeamID(), handlers.HandleCleanupTemp(h))
	}

	router.POST("/host/script/execute", handlers.HandleScriptExecute(h))
}

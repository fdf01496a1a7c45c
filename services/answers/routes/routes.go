// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
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

	"github.com/StudioBridgeAI/StudioBridge/services/answers/handlers"
)

// SetupRoutes registers the service's endpoints on the router.
func SetupRoutes(router *gin.Engine, queryHandler *handlers.QueryHandler, enableMetrics bool) {

	router.GET("/health", handlers.HealthCheck)

	if enableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/query/stream", queryHandler.HandleQueryStream)
	}
}

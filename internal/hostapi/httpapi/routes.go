package httpapi

import "github.com/gin-gonic/gin"

// setupRoutes mirrors the teacher's routes.go grouping style (base group,
// versioned group, nested resource groups) but binds directly to
// hostapi.API operations instead of *core.Engine.
func (s *Server) setupRoutes() {
	h := newHandler(s.api)

	base := s.router.Group("/api")
	base.GET("/ping", h.ping)
	base.GET("/health", h.health)

	authGroup := base.Group("/auth")
	{
		authGroup.POST("/login", s.auth.login)
		authGroup.GET("/me", s.auth.requireAuth(), s.auth.me)
	}

	v1 := base.Group("/v1")
	v1.Use(s.auth.requireAuth())
	{
		sites := v1.Group("/sites")
		sites.GET("", h.getAllSites)
		sites.POST("", h.addSite)
		sites.GET("/:identifier", h.getSite)
		sites.PUT("/:identifier", h.updateSite)
		sites.DELETE("/:identifier", h.removeSite)

		sites.POST("/:identifier/monitors", h.addMonitor)
		sites.POST("/:identifier/start", h.startMonitoringForSite)
		sites.POST("/:identifier/stop", h.stopMonitoringForSite)
		sites.POST("/:identifier/check", h.checkSiteNow)

		monitors := v1.Group("/monitors")
		monitors.DELETE("/:monitorId", h.removeMonitor)
		monitors.POST("/:monitorId/check", h.checkMonitorNow)

		monitorTypes := v1.Group("/monitor-types")
		monitorTypes.GET("", h.listMonitorTypes)

		settings := v1.Group("/settings")
		settings.GET("/history-limit", h.getHistoryLimit)
		settings.PUT("/history-limit", h.updateHistoryLimit)

		data := v1.Group("/data")
		data.GET("/export", h.exportData)
		data.POST("/import/preview", h.previewImport)
		data.POST("/import", h.persistImport)
		data.POST("/backup", h.downloadBackup)
		data.POST("/restore", h.restoreBackup)

		v1.GET("/events", h.events)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(404, Response{Success: false, Error: &Error{Code: "NOT_FOUND", Message: "route not found"}})
	})
}

package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"watcherd/internal/domain"
	"watcherd/internal/eventbus"
	"watcherd/internal/hostapi"
	"watcherd/internal/managers"
)

// handler binds hostapi.API operations to Gin routes. Thin by design: one
// method per Host Interface operation, grounded on the teacher's
// internal/api.Handler pattern of a struct wrapping the engine it fronts.
type handler struct {
	api hostapi.API
}

func newHandler(api hostapi.API) *handler { return &handler{api: api} }

func respond(c *gin.Context, data any, err error) {
	if err != nil {
		c.JSON(httpStatus(err), errorResponse(err))
		return
	}
	c.JSON(http.StatusOK, success(data))
}

func (h *handler) ping(c *gin.Context) {
	c.JSON(http.StatusOK, success(gin.H{"message": "pong"}))
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, success(gin.H{"status": "ok"}))
}

func (h *handler) getAllSites(c *gin.Context) {
	sites, err := h.api.GetAllSites(c.Request.Context())
	respond(c, sites, err)
}

func (h *handler) getSite(c *gin.Context) {
	site, err := h.api.GetSite(c.Request.Context(), c.Param("identifier"))
	respond(c, site, err)
}

func (h *handler) addSite(c *gin.Context) {
	var site domain.Site
	if err := c.ShouldBindJSON(&site); err != nil {
		respond(c, nil, domain.Wrap(domain.CodeValidation, "invalid site payload", err))
		return
	}
	created, err := h.api.AddSite(c.Request.Context(), &site)
	respond(c, created, err)
}

func (h *handler) updateSite(c *gin.Context) {
	var site domain.Site
	if err := c.ShouldBindJSON(&site); err != nil {
		respond(c, nil, domain.Wrap(domain.CodeValidation, "invalid site payload", err))
		return
	}
	site.Identifier = c.Param("identifier")
	updated, err := h.api.UpdateSite(c.Request.Context(), &site)
	respond(c, updated, err)
}

func (h *handler) removeSite(c *gin.Context) {
	err := h.api.RemoveSite(c.Request.Context(), c.Param("identifier"))
	respond(c, nil, err)
}

func (h *handler) addMonitor(c *gin.Context) {
	var mon domain.Monitor
	if err := c.ShouldBindJSON(&mon); err != nil {
		respond(c, nil, domain.Wrap(domain.CodeValidation, "invalid monitor payload", err))
		return
	}
	mon.SiteIdentifier = c.Param("identifier")
	err := h.api.AddMonitor(c.Request.Context(), &mon)
	respond(c, mon, err)
}

func (h *handler) removeMonitor(c *gin.Context) {
	err := h.api.RemoveMonitor(c.Request.Context(), c.Param("monitorId"))
	respond(c, nil, err)
}

func (h *handler) startMonitoringForSite(c *gin.Context) {
	err := h.api.StartMonitoringForSite(c.Request.Context(), c.Param("identifier"))
	respond(c, nil, err)
}

func (h *handler) stopMonitoringForSite(c *gin.Context) {
	err := h.api.StopMonitoringForSite(c.Request.Context(), c.Param("identifier"))
	respond(c, nil, err)
}

func (h *handler) checkSiteNow(c *gin.Context) {
	err := h.api.CheckSiteNow(c.Request.Context(), c.Param("identifier"))
	respond(c, nil, err)
}

func (h *handler) checkMonitorNow(c *gin.Context) {
	err := h.api.CheckMonitorNow(c.Request.Context(), c.Param("monitorId"))
	respond(c, nil, err)
}

func (h *handler) getHistoryLimit(c *gin.Context) {
	limit, err := h.api.GetHistoryLimit(c.Request.Context())
	respond(c, gin.H{"limit": limit}, err)
}

type historyLimitRequest struct {
	Limit int `json:"limit" binding:"required"`
}

func (h *handler) updateHistoryLimit(c *gin.Context) {
	var req historyLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, domain.Wrap(domain.CodeValidation, "invalid history limit payload", err))
		return
	}
	err := h.api.UpdateHistoryLimit(c.Request.Context(), req.Limit)
	respond(c, nil, err)
}

func (h *handler) exportData(c *gin.Context) {
	payload, err := h.api.ExportData(c.Request.Context())
	respond(c, payload, err)
}

func (h *handler) previewImport(c *gin.Context) {
	var payload managers.ExportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respond(c, nil, domain.Wrap(domain.CodeValidation, "invalid import payload", err))
		return
	}
	preview, err := h.api.PreviewImport(c.Request.Context(), &payload)
	respond(c, preview, err)
}

func (h *handler) persistImport(c *gin.Context) {
	var payload managers.ExportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respond(c, nil, domain.Wrap(domain.CodeValidation, "invalid import payload", err))
		return
	}
	err := h.api.PersistImport(c.Request.Context(), &payload)
	respond(c, nil, err)
}

func (h *handler) downloadBackup(c *gin.Context) {
	dest := c.Query("path")
	if dest == "" {
		respond(c, nil, domain.NewErrorf(domain.CodeValidation, "path query parameter is required"))
		return
	}
	meta, err := h.api.DownloadBackup(c.Request.Context(), dest)
	respond(c, meta, err)
}

type restoreBackupRequest struct {
	Path     string                   `json:"path" binding:"required"`
	Metadata *managers.BackupMetadata `json:"metadata" binding:"required"`
}

func (h *handler) restoreBackup(c *gin.Context) {
	var req restoreBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, domain.Wrap(domain.CodeValidation, "invalid restore payload", err))
		return
	}
	err := h.api.RestoreBackup(c.Request.Context(), req.Path, req.Metadata)
	respond(c, nil, err)
}

func (h *handler) listMonitorTypes(c *gin.Context) {
	c.JSON(http.StatusOK, success(h.api.ListMonitorTypes()))
}

// events streams one event name as Server-Sent Events until the client
// disconnects, unsubscribing via the closure hostapi.Subscribe returns so
// the listener doesn't outlive the connection.
func (h *handler) events(c *gin.Context) {
	eventName := c.Query("event")
	if eventName == "" {
		respond(c, nil, domain.NewErrorf(domain.CodeValidation, "event query parameter is required"))
		return
	}

	payloads := make(chan any, 16)
	unsub := hostapi.Subscribe(h.api, eventName, func(env eventbus.Envelope) {
		select {
		case payloads <- env.Payload:
		default:
		}
	})
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case payload := <-payloads:
			c.SSEvent(eventName, payload)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

package controller

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/Tom-Camp/fe/internal/modules/devices/types"
	"github.com/Tom-Camp/fe/internal/modules/devices/views"
	"github.com/Tom-Camp/fe/internal/telemetry"
	"github.com/Tom-Camp/fe/internal/utils"
)

// refreshTimeout bounds a cache invalidation started over HTTP.
const refreshTimeout = 5 * time.Second

func (c *devicesControllerImpl) handleHome(w http.ResponseWriter, r *http.Request) {
	sums := c.service.Overview(r.Context())
	data := views.NewHomeData(views.NewLayout("Home", c.service.Classes(), ""), sums)

	var buf bytes.Buffer
	if err := views.RenderHome(&buf, data); err != nil {
		c.logger.Error("home template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	c.writeHTML(w, http.StatusOK, &buf)
}

func (c *devicesControllerImpl) handleDevice(w http.ResponseWriter, r *http.Request) {
	class := classParam(r)
	d, err := c.service.Dashboard(r.Context(), class)
	if err != nil {
		status, msg := views.Classify(err)
		c.logFailure(r, "device page: load failed", status, err)
		c.writeErrorPage(w, status, msg)
		return
	}

	data := views.NewDeviceData(views.NewLayout(d.Title, c.service.Classes(), class), d)
	var buf bytes.Buffer
	if err := views.RenderDevice(&buf, data); err != nil {
		c.logger.Error("device template render failed", "class", class, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	c.writeHTML(w, http.StatusOK, &buf)
}

func (c *devicesControllerImpl) handleNotFound(w http.ResponseWriter, r *http.Request) {
	c.writeErrorPage(w, http.StatusNotFound, "page not found")
}

func (c *devicesControllerImpl) handleDevices(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.service.Classes())
}

func (c *devicesControllerImpl) handleRecords(w http.ResponseWriter, r *http.Request) {
	d, err := c.service.Dashboard(r.Context(), classParam(r))
	if err != nil {
		status, msg := views.Classify(err)
		c.logFailure(r, "records: load failed", status, err)
		utils.WriteError(w, status, msg)
		return
	}

	utils.WriteJSON(w, http.StatusOK, types.RecordsResponse{
		Class:      d.Class,
		DeviceID:   d.DeviceID,
		Phase:      d.Phase,
		DataPoints: d.DataPoints,
		Skipped:    len(d.Skipped),
		FetchedAt:  d.FetchedAt,
		Timezone:   d.Zone,
		Columnar:   d.Table,
	})
}

func (c *devicesControllerImpl) handleErrors(w http.ResponseWriter, r *http.Request) {
	d, err := c.service.Dashboard(r.Context(), classParam(r))
	if err != nil {
		status, msg := views.Classify(err)
		c.logFailure(r, "errors: load failed", status, err)
		utils.WriteError(w, status, msg)
		return
	}

	events := d.Errors
	if events == nil {
		events = []telemetry.ErrorEvent{}
	}
	utils.WriteJSON(w, http.StatusOK, types.ErrorsResponse{Class: d.Class, Errors: events})
}

func (c *devicesControllerImpl) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	if err := c.service.Refresh(ctx, classParam(r)); err != nil {
		status, msg := views.Classify(err)
		c.logFailure(r, "refresh failed", status, err)
		utils.WriteError(w, status, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

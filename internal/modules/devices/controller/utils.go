package controller

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Tom-Camp/fe/internal/modules/devices/views"
	"github.com/Tom-Camp/fe/internal/telemetry"
	"github.com/Tom-Camp/fe/internal/utils"
)

func classParam(r *http.Request) telemetry.DeviceClass {
	return telemetry.DeviceClass(chi.URLParam(r, "class"))
}

// logFailure logs server-side failures at error level and client mistakes
// at debug level.
func (c *devicesControllerImpl) logFailure(r *http.Request, msg string, status int, err error) {
	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelDebug
	}
	c.logger.Log(r.Context(), level, msg,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
}

func (c *devicesControllerImpl) writeHTML(w http.ResponseWriter, status int, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		c.logger.Error("write response failed", "error", err)
	}
}

// writeErrorPage renders the HTML error page, falling back to a JSON error
// when the template itself cannot be rendered.
func (c *devicesControllerImpl) writeErrorPage(w http.ResponseWriter, status int, msg string) {
	data := views.ErrorData{
		Layout:  views.NewLayout(http.StatusText(status), c.service.Classes(), ""),
		Status:  status,
		Heading: http.StatusText(status),
		Message: msg,
	}
	var buf bytes.Buffer
	if err := views.RenderError(&buf, data); err != nil {
		c.logger.Error("error page render failed", "error", err)
		utils.WriteError(w, status, msg)
		return
	}
	c.writeHTML(w, status, &buf)
}

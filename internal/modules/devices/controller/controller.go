package controller

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/Tom-Camp/fe/internal/modules/devices/types"
	"github.com/Tom-Camp/fe/internal/modules/devices/views"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

// DeviceService is what the handlers need from the service layer.
type DeviceService interface {
	Classes() []types.DeviceInfo
	Dashboard(ctx context.Context, class telemetry.DeviceClass) (types.Dashboard, error)
	Overview(ctx context.Context) []types.Summary
	Refresh(ctx context.Context, class telemetry.DeviceClass) error
}

type DevicesController interface {
	RegisterRoutes(r chi.Router)
}

type devicesControllerImpl struct {
	service DeviceService
	logger  *slog.Logger
}

func NewDevicesController(service DeviceService, logger *slog.Logger) DevicesController {
	if logger == nil {
		logger = slog.Default()
	}
	return &devicesControllerImpl{service: service, logger: logger}
}

func (c *devicesControllerImpl) RegisterRoutes(r chi.Router) {
	r.Get("/", c.handleHome)
	r.Get("/devices/{class}", c.handleDevice)
	r.Handle("/static/*", views.StaticHandler())

	r.Route("/api/v1/devices", func(r chi.Router) {
		r.Get("/", c.handleDevices)
		r.Get("/{class}/records", c.handleRecords)
		r.Get("/{class}/errors", c.handleErrors)
		r.Post("/{class}/refresh", c.handleRefresh)
	})

	r.NotFound(c.handleNotFound)
}

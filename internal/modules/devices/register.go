package devices

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/Tom-Camp/fe/internal/modules/devices/controller"
)

func RegisterFeature(r chi.Router, svc controller.DeviceService, logger *slog.Logger) {
	devicesController := controller.NewDevicesController(svc, logger)
	devicesController.RegisterRoutes(r)
}

package devices

import (
	"context"
	"log/slog"
	"time"

	"github.com/Tom-Camp/fe/internal/mqtt"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

// MQTTSubscriber interface for attaching message handlers
type MQTTSubscriber interface {
	SetMessageHandler(handler func(notice mqtt.RefreshNotice) error)
}

// Refresher drops the cached document of a device class.
type Refresher interface {
	Refresh(ctx context.Context, class telemetry.DeviceClass) error
}

const refreshTimeout = 5 * time.Second

// RegisterRefreshHandler invalidates a device's cached document whenever a
// refresh notice for its class arrives.
func RegisterRefreshHandler(subscriber MQTTSubscriber, svc Refresher, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(notice mqtt.RefreshNotice) error {
		logger.Debug("processing refresh notice",
			"device_class", notice.DeviceClass,
			"device_id", notice.DeviceID,
		)

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		return svc.Refresh(ctx, notice.DeviceClass)
	})
}

package views

import (
	"errors"
	"net/http"

	"github.com/Tom-Camp/fe/internal/fetch"
	"github.com/Tom-Camp/fe/internal/modules/devices/service"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

// Classify maps a service error to an HTTP status and a message safe to
// show to visitors.
func Classify(err error) (int, string) {
	var fe *fetch.FetchError
	switch {
	case errors.Is(err, service.ErrUnknownDevice):
		return http.StatusNotFound, "unknown device"
	case errors.Is(err, telemetry.ErrMalformedPayload):
		return http.StatusBadGateway, "upstream returned malformed document"
	case errors.As(err, &fe):
		if fe.StatusCode != 0 {
			return http.StatusBadGateway, "device API returned " + http.StatusText(fe.StatusCode)
		}
		return http.StatusBadGateway, "device API unreachable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// UserMessage is the message half of Classify.
func UserMessage(err error) string {
	_, msg := Classify(err)
	return msg
}

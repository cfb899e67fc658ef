package httpapi

import (
	"net/http"
	"time"

	"github.com/Tom-Camp/fe/internal/config"
)

func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Pages may wait on two upstream fetches with retries.
		WriteTimeout: 2*cfg.FetchTimeout*time.Duration(cfg.FetchMaxRetries+1) + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promHandler returns the default Prometheus registry's scrape handler,
// which internal/telemetry's exporter registers instruments against.
func promHandler() http.Handler {
	return promhttp.Handler()
}

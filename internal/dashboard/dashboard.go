// Package dashboard serves a single-page view of the running monitors on top
// of the status/control API.
package dashboard

import (
	"net/http"
	"strings"

	"github.com/IshaanNene/NewsHound/internal/config"
)

// Handler serves the dashboard page. The page polls /api/status and drives
// the start/stop endpoints.
func Handler() http.Handler {
	page := strings.ReplaceAll(dashboardHTML, "{{VERSION}}", config.Version)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte(page))
	})
}

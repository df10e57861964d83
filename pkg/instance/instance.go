package instance

import (
	"os"

	"github.com/charityconnect/charityconnect-backend/pkg/env"
)

// ID identifies the running process in logs and cron lock ownership. The
// platform dyno name wins, then WORKER_ID, then the hostname.
func ID(fallback string) string {
	if id := env.Get("DYNO", ""); id != "" {
		return id
	}
	if id := env.Get("WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallback
}

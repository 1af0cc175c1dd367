package instance

import (
	"os"

	"github.com/angelmondragon/dishdash-backend/pkg/env"
)

// GetID identifies the running process, preferring WORKER_ID over the platform DYNO name.
func GetID() string {
	if id := env.First("WORKER_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

package instance

import "os"

const defaultID = "worker-0"

// GetID identifies this process in logs. NEWSLETTER_WORKER_ID wins, then the
// platform's DYNO, then the hostname.
func GetID() string {
	for _, key := range []string{"NEWSLETTER_WORKER_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}

package instance

import "os"

// GetID names the running process in logs: SHUTTERDESK_INSTANCE_ID, then the
// platform dyno or host name, then "local".
func GetID() string {
	for _, key := range []string{"SHUTTERDESK_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}

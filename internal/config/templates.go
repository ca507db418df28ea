package config

import (
	"fmt"
	"os"
)

// Template returns the annotated default configuration file.
func Template() string {
	return serviceTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(serviceTemplate), 0o600)
}

const serviceTemplate = `# "session", "system", or a bus address such as "unix:path=/run/dbus/socket"
bus = "session"
client_prefix = "org.freedesktop.Telepathy.Client."

# Serves /metrics and /health when set.
metrics_addr = "127.0.0.1:9470"

# 0 retries forever.
connect_attempts = 5
backoff_initial = "250ms"
backoff_max = "5s"
backoff_jitter = true

log_level = "info"
`

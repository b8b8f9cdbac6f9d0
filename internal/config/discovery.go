// ABOUTME: Environment-driven discovery of downstream service base URLs
// ABOUTME: Distinguishes orchestrated-network deployments from local development

package config

import (
	"errors"
	"fmt"
	"os"
)

// ErrConfiguration means a required environment variable or config value is
// missing. It is fatal to the operation and never retried.
var ErrConfiguration = errors.New("configuration error")

// containerMarker is the runtime marker file whose presence means we are
// inside an orchestrated container network and must address peers by their
// network name instead of localhost.
const containerMarker = "/.dockerenv"

// Well-known service ports by running stage.
const (
	AuthdProdPort = 8083
	AuthdDevPort  = 8003

	TrainhubProdPort = 8082
	TrainhubDevPort  = 8002

	ServingdProdPort = 8080
	ServingdDevPort  = 8000
)

// Stage returns the running stage (prod, dev, test). Defaults to dev.
func Stage() string {
	if stage := os.Getenv("RUNNING_STAGE"); stage != "" {
		return stage
	}
	return "dev"
}

// StagePort selects the production or development port for a service based
// on the running stage.
func StagePort(prodPort, devPort int) int {
	if Stage() == "prod" {
		return prodPort
	}
	return devPort
}

// DefaultServiceURL builds the base URL for a peer service from the running
// stage and the container marker. Inside an orchestrated network peers are
// addressed as <service>_<stage>; locally everything runs on localhost.
func DefaultServiceURL(service string, prodPort, devPort int) string {
	return defaultServiceURL(service, prodPort, devPort, containerMarker)
}

func defaultServiceURL(service string, prodPort, devPort int, marker string) string {
	port := StagePort(prodPort, devPort)
	if _, err := os.Stat(marker); err == nil {
		return fmt.Sprintf("http://%s_%s:%d", service, Stage(), port)
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

// ServiceURLFromEnv resolves a service base URL strictly from
// <PREFIX>_HOST and <PREFIX>_PORT. Both must be set; a missing value is a
// configuration error, not a retryable failure.
func ServiceURLFromEnv(prefix string) (string, error) {
	host := os.Getenv(prefix + "_HOST")
	port := os.Getenv(prefix + "_PORT")
	if host == "" || port == "" {
		return "", fmt.Errorf("%w: %s_HOST or %s_PORT environment variable not set", ErrConfiguration, prefix, prefix)
	}
	return fmt.Sprintf("http://%s:%s", host, port), nil
}

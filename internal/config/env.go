// Package config reads the process environment into the handful of
// settings the core needs, and builds the outbound HTTP client with the
// configured trusted certificates (httpclient.go); everything else
// (routing, DB pool sizing) is wired by the process that owns it.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/vertix-social/vertix/internal/verr"
)

// GetEnv returns the named environment variable, or def if unset or empty.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// MustGetEnv returns the named environment variable or panics. Only used
// for settings that have no sane default and whose absence is a deploy-time
// mistake, not a runtime error a caller should recover from.
func MustGetEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic("required environment variable not set: " + key)
	}
	return v
}

// Config holds every environment-driven setting the binaries share.
type Config struct {
	Host         string
	Port         string
	Domain       string
	BaseURL      string
	TrustedCerts []string
	AMQPAddr     string

	ArangoEndpoint string
	ArangoDatabase string
	ArangoUsername string
	ArangoPassword string
}

// ErrAMQPAddrMissing is returned by Load when AMQP_ADDR is unset. There is
// no safe default broker address to fall back to.
var ErrAMQPAddrMissing = verr.Wrap(verr.AmqpConfigMissing, "AMQP_ADDR is required", nil)

// Load reads Config from the process environment.
func Load() (Config, error) {
	host := GetEnv("HOST", "127.0.0.1")
	port := GetEnv("PORT", "8080")
	domain := GetEnv("VERTIX_DOMAIN", "localhost")
	baseURL := GetEnv("VERTIX_BASE_URL", fmt.Sprintf("http://%s:%s/", domain, port))

	var certs []string
	if raw := os.Getenv("VERTIX_TRUSTED_CERTS"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				certs = append(certs, p)
			}
		}
	}

	amqpAddr := os.Getenv("AMQP_ADDR")
	if amqpAddr == "" {
		return Config{}, ErrAMQPAddrMissing
	}

	return Config{
		Host:         host,
		Port:         port,
		Domain:       domain,
		BaseURL:      baseURL,
		TrustedCerts: certs,
		AMQPAddr:     amqpAddr,

		ArangoEndpoint: GetEnv("VERTIX_ARANGO_ENDPOINT", "http://127.0.0.1:8529"),
		ArangoDatabase: GetEnv("VERTIX_ARANGO_DATABASE", "vertix"),
		ArangoUsername: GetEnv("VERTIX_ARANGO_USERNAME", "root"),
		ArangoPassword: GetEnv("VERTIX_ARANGO_PASSWORD", ""),
	}, nil
}

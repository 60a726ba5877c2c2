package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"
)

// outboundTimeout caps every outgoing federation request (account fetch,
// activity delivery, WebFinger lookup).
const outboundTimeout = 10 * time.Second

// NewHTTPClient builds the outgoing HTTP client shared by the account
// fetcher, the activity deliverer, and the WebFinger client. Each PEM file
// named in VERTIX_TRUSTED_CERTS is appended to the system trust store, so
// a test federation can run against peers with a private CA.
func (c Config) NewHTTPClient() (*http.Client, error) {
	if len(c.TrustedCerts) == 0 {
		return &http.Client{Timeout: outboundTimeout}, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	for _, path := range c.TrustedCerts {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read trusted cert %s: %w", path, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", path)
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	return &http.Client{Timeout: outboundTimeout, Transport: transport}, nil
}

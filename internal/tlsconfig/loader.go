// Package tlsconfig builds the server TLS configuration from PEM files.
package tlsconfig

import (
	"crypto/tls"
	"errors"
	"fmt"
)

// Load reads a certificate/key pair and returns a server config that
// requires TLS 1.2 or newer.
func Load(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("certificate and key files are required")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair %s/%s: %w", certFile, keyFile, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

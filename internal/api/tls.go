package api

import (
	"crypto/tls"
	"fmt"
	"os"
)

// TLSConfig holds the certificate pair the API serves with.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

var tlsConfig *TLSConfig

// InitTLS reads PLAYER_TLS_CERT and PLAYER_TLS_KEY. Setting only one of
// the two is an error; setting neither serves plain HTTP.
func InitTLS() error {
	cert := os.Getenv("PLAYER_TLS_CERT")
	key := os.Getenv("PLAYER_TLS_KEY")

	switch {
	case cert == "" && key == "":
		tlsConfig = nil
		return nil
	case cert == "" || key == "":
		tlsConfig = nil
		return fmt.Errorf("PLAYER_TLS_CERT and PLAYER_TLS_KEY must be set together")
	}
	tlsConfig = &TLSConfig{CertFile: cert, KeyFile: key}
	return nil
}

// IsTLSEnabled returns true if TLS is configured.
func IsTLSEnabled() bool {
	return tlsConfig != nil
}

// GetTLSConfig returns the current TLS configuration (may be nil).
func GetTLSConfig() *TLSConfig {
	return tlsConfig
}

// LoadTLSConfig loads the configured key pair. It returns nil, nil when
// TLS is not configured.
func LoadTLSConfig() (*tls.Config, error) {
	if !IsTLSEnabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// SetTLSConfigForTest allows tests to set TLS config directly.
func SetTLSConfigForTest(cfg *TLSConfig) {
	tlsConfig = cfg
}

package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// LoadTLSConfig builds the *tls.Config a replica's network.Node listens and
// dials with, so that only holders of a certificate signed by the
// committee's CA (see crypto/certgen) can open a connection in either
// direction — every other replica authenticates its peer, not just the
// dialer authenticating the listener. Returns (nil, nil) when cfg is nil or
// every path is empty, telling the caller to fall back to plain TCP.
func LoadTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil || (cfg.CACert == "" && cfg.NodeCert == "" && cfg.NodeKey == "") {
		return nil, nil
	}

	caPEM, err := os.ReadFile(cfg.CACert)
	if err != nil {
		return nil, fmt.Errorf("tls: read committee CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("tls: parse committee CA cert: no valid PEM blocks")
	}

	cert, err := tls.LoadX509KeyPair(cfg.NodeCert, cfg.NodeKey)
	if err != nil {
		return nil, fmt.Errorf("tls: load replica cert/key: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		// Both roles: ClientCAs gates inbound peer dials (network.Node's
		// listener), RootCAs gates this replica's own outbound dials.
		ClientCAs:  caPool,
		RootCAs:    caPool,
		ClientAuth: tls.RequireAndVerifyClientCert,
		MinVersion: tls.VersionTLS13,
	}, nil
}

// Package server implements the HTTPS file server: certificate loading,
// the middleware chain around the file handler, and graceful shutdown.
package server

// Config holds the configuration for the server. It is assembled once in
// main and never mutated after the server starts.
type Config struct {
	// Addr is the address to listen on.
	// Example: ":8080" or "127.0.0.1:8080"
	Addr string

	// Root is the directory whose contents are served.
	Root string

	// CertFile and KeyFile are the paths to the PEM-encoded TLS certificate
	// and private key.
	CertFile string
	KeyFile  string

	// SelfSign mints a self-signed pair at CertFile/KeyFile when neither
	// file exists yet. Existing files are never overwritten.
	SelfSign bool

	// Hosts are the DNS names and IP literals a minted certificate covers.
	// Only consulted when SelfSign actually mints.
	Hosts []string

	// PlainHTTP disables TLS. Browsers treat localhost as a secure context,
	// so the isolation headers still take effect there.
	PlainHTTP bool

	// NoCache additionally stamps Cache-Control: no-store on every response,
	// so browser reloads always fetch fresh bytes.
	NoCache bool
}

// DefaultConfig returns a Config with the conventional local-dev defaults.
func DefaultConfig() Config {
	return Config{
		Addr:     ":8080",
		Root:     ".",
		CertFile: "cert.pem",
		KeyFile:  "key.pem",
		Hosts:    []string{"localhost", "127.0.0.1", "::1"},
	}
}

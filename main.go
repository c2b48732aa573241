package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"isoserve/internal/server"
	"isoserve/internal/version"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "listen address")
		root        = flag.String("root", ".", "directory to serve")
		certFile    = flag.String("cert", "cert.pem", "TLS certificate file (PEM)")
		keyFile     = flag.String("key", "key.pem", "TLS private key file (PEM)")
		selfSigned  = flag.Bool("self-signed", false, "mint a self-signed certificate when none exists")
		hosts       = flag.String("hosts", "localhost,127.0.0.1,::1", "comma-separated hosts a minted certificate covers")
		noTLS       = flag.Bool("no-tls", false, "serve plain HTTP instead of HTTPS")
		noCache     = flag.Bool("no-cache", false, "send Cache-Control: no-store on every response")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return
	}

	cfg := server.Config{
		Addr:      *addr,
		Root:      *root,
		CertFile:  *certFile,
		KeyFile:   *keyFile,
		SelfSign:  *selfSigned,
		Hosts:     splitHosts(*hosts),
		PlainHTTP: *noTLS,
		NoCache:   *noCache,
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg server.Config) error {
	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	return srv.Run(context.Background())
}

// splitHosts splits a comma-separated host list, trimming whitespace.
func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

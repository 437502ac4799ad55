// Package serverutil runs an http.Server with optional TLS and a bounded
// graceful shutdown. It carries no overlay semantics; internal/server owns
// the routes and hands its assembled server here.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds the graceful drain when none is configured.
const DefaultShutdownTimeout = 10 * time.Second

// TLSConfig names the certificate and key files for a TLS listener. Both
// paths must be set together; leaving both empty serves plain HTTP.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Config describes one server run.
type Config struct {
	Server *http.Server
	TLS    TLSConfig
	// ShutdownTimeout bounds the drain once the context ends. Zero means
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
	// Ready, when non-nil, is closed once the listener is accepting.
	Ready chan<- struct{}
}

// Run listens, serves, and blocks until the server stops on its own or the
// context is cancelled. Cancellation triggers a graceful shutdown; requests
// still in flight get ShutdownTimeout to finish.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Server == nil {
		return errors.New("serverutil: server is required")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return errors.New("serverutil: TLS cert and key must be set together")
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	if cfg.TLS.CertFile != "" {
		tlsLn, err := wrapTLS(cfg.Server, ln, cfg.TLS)
		if err != nil {
			_ = ln.Close()
			return err
		}
		ln = tlsLn
	}

	if cfg.Ready != nil {
		close(cfg.Ready)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- cfg.Server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	shutdownErr := cfg.Server.Shutdown(shutdownCtx)

	// Serve returns ErrServerClosed once Shutdown takes over; any other
	// error from it outranks the shutdown result.
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-shutdownCtx.Done():
		if shutdownErr != nil {
			return shutdownErr
		}
		return shutdownCtx.Err()
	}
	return shutdownErr
}

func wrapTLS(srv *http.Server, ln net.Listener, cfg TLSConfig) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS keypair: %w", err)
	}
	tlsCfg := srv.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	} else {
		tlsCfg = tlsCfg.Clone()
	}
	tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
	srv.TLSConfig = tlsCfg
	return tls.NewListener(ln, tlsCfg), nil
}

// Package serverutil runs an http.Server until its context ends.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// TLSConfig points at a PEM certificate and key. Both or neither must be set.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

type Config struct {
	Server          *http.Server
	TLS             TLSConfig
	ShutdownTimeout time.Duration
	// Ready receives the bound address once the listener is open. The send
	// does not block, so a buffered channel of one is expected.
	Ready  chan<- net.Addr
	Logger *slog.Logger
}

// DefaultShutdownTimeout bounds graceful shutdown when the context is cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// Run binds the listener, serves until ctx is cancelled and then drains
// in-flight requests for at most ShutdownTimeout. TLS listeners never accept
// anything older than TLS 1.2.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Server == nil {
		return errors.New("server is required")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return errors.New("both TLS cert file and key file must be provided")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ln, err := listen(cfg.Server, cfg.TLS)
	if err != nil {
		return err
	}

	if cfg.Ready != nil {
		select {
		case cfg.Ready <- ln.Addr():
		default:
		}
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

	logger.Info("shutting down http server", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := cfg.Server.Shutdown(shutdownCtx)

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

func listen(server *http.Server, tlsCfg TLSConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, err
	}
	if !tlsCfg.Enabled() {
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	config := &tls.Config{}
	if server.TLSConfig != nil {
		config = server.TLSConfig.Clone()
	}
	if config.MinVersion < tls.VersionTLS12 {
		config.MinVersion = tls.VersionTLS12
	}
	config.Certificates = append([]tls.Certificate{cert}, config.Certificates...)
	server.TLSConfig = config
	return tls.NewListener(ln, config), nil
}

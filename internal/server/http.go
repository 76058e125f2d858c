package server

import (
	"context"
	"net"
	"net/http"
	"time"

	conf "github.com/likaia/nginxpulse-exporter/config"
	"github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/registry"
	"github.com/likaia/nginxpulse-exporter/registry/consul"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	Server   *http.Server
	listener net.Listener
	exitChan chan error
	registry registry.ServiceRegistrator
}

// BuildServer constructs the HTTP server and, when consul is configured,
// its service registration.
func BuildServer(config *conf.AppConfig, handler http.Handler, exitChan chan error) (*Server, error) {
	listener, err := net.Listen("tcp", config.HTTP.Addr)
	if err != nil {
		return nil, errors.Internal(
			err.Error(),
			errors.WithID("server.build.listen.error"),
		)
	}

	var reg registry.ServiceRegistrator
	if config.Consul.Address != "" {
		reg, err = consul.NewConsulRegistry(config.Consul, config.HTTP.PublicAddress)
		if err != nil {
			return nil, errors.Internal(
				err.Error(),
				errors.WithID("server.build.consul_registry.error"),
			)
		}
	}

	return &Server{
		Server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		exitChan: exitChan,
		registry: reg,
	}, nil
}

// Start registers and starts the HTTP server.
func (s *Server) Start() {
	if s.registry != nil {
		if err := s.registry.Register(); err != nil {
			s.exitChan <- err
			return
		}
	}
	if err := s.Server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		s.exitChan <- errors.Internal(
			err.Error(),
			errors.WithID("server.start.serve.error"),
		)
	}
}

// Stop deregisters the service and gracefully shuts the server down.
func (s *Server) Stop() {
	if s.registry != nil {
		if err := s.registry.Deregister(); err != nil {
			s.exitChan <- err
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.Server.Shutdown(ctx)
}

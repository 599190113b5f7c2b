//go:build !linux

package server

import (
	"context"
	"net"

	"gosock/internal/errors"
	"gosock/internal/metrics"
	"gosock/util"
)

// Server is unavailable on this platform; the event loop needs epoll.
type Server struct{}

// New returns a Server whose methods all fail.
func New(Options, Handler, *util.Logger, *metrics.Collector) *Server { return &Server{} }

// Listen returns errors.ErrUnsupportedPlatform.
func (s *Server) Listen() error { return errors.ErrUnsupportedPlatform }

// Serve returns errors.ErrUnsupportedPlatform.
func (s *Server) Serve(context.Context) error { return errors.ErrUnsupportedPlatform }

// Run returns errors.ErrUnsupportedPlatform.
func (s *Server) Run(context.Context) error { return errors.ErrUnsupportedPlatform }

// Addr returns nil.
func (s *Server) Addr() net.Addr { return nil }

// Clients returns 0.
func (s *Server) Clients() int { return 0 }

package transport

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
)

type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

// Listen binds addr and registers services through register.
func Listen(addr string, register func(*grpc.Server)) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return NewServer(lis, register), nil
}

func NewServer(lis net.Listener, register func(*grpc.Server), opts ...grpc.ServerOption) *Server {
	s := &Server{grpc: grpc.NewServer(opts...), lis: lis}
	register(s.grpc)
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// Package testutil provides an in-memory gRPC server and recorders shared by
// package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// Target is the address tests configure the channel with.
const Target = "passthrough:///bufnet"

// Methods served by the default routes.
const (
	MethodUnary    = "/test.Echo/Unary"
	MethodFail     = "/test.Echo/Fail"
	MethodStream   = "/test.Echo/Stream"
	MethodInfinite = "/test.Echo/Infinite"
	MethodCollect  = "/test.Echo/Collect"
	MethodHang     = "/test.Echo/Hang"
	MethodMirror   = "/test.Echo/Mirror"
)

// Handler serves one raw-bytes method.
type Handler func(stream grpc.ServerStream) error

// Server is a gRPC server listening on an in-memory pipe.
type Server struct {
	lis    *bufconn.Listener
	srv    *grpc.Server
	routes map[string]Handler
}

// NewServer starts a server with the default routes plus any overrides.
// It is stopped when the test ends.
func NewServer(t testing.TB, overrides map[string]Handler) *Server {
	t.Helper()

	s := &Server{
		lis:    bufconn.Listen(1 << 20),
		routes: DefaultRoutes(),
	}
	for method, h := range overrides {
		s.routes[method] = h
	}

	s.srv = grpc.NewServer(
		grpc.ForceServerCodec(rawCodec{}),
		grpc.UnknownServiceHandler(s.dispatch),
	)
	go func() { _ = s.srv.Serve(s.lis) }()

	t.Cleanup(s.srv.Stop)
	return s
}

// DialOption routes a client's connections to this server.
func (s *Server) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return s.lis.DialContext(ctx)
	})
}

// Stop terminates the server and its connections.
func (s *Server) Stop() {
	s.srv.Stop()
}

func (s *Server) dispatch(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	h, ok := s.routes[method]
	if !ok {
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
	return h(stream)
}

// DefaultRoutes returns the stock echo handlers.
func DefaultRoutes() map[string]Handler {
	return map[string]Handler{
		MethodUnary:    unary,
		MethodFail:     fail,
		MethodStream:   stream,
		MethodInfinite: infinite,
		MethodCollect:  collect,
		MethodHang:     hang,
		MethodMirror:   mirror,
	}
}

// unary echoes one message between a header and a trailer.
func unary(ss grpc.ServerStream) error {
	var in []byte
	if err := ss.RecvMsg(&in); err != nil {
		return err
	}
	if err := ss.SendHeader(metadata.Pairs("x-server", "echo", "x-raw-bin", "\x01\x02")); err != nil {
		return err
	}
	if err := ss.SendMsg(in); err != nil {
		return err
	}
	ss.SetTrailer(metadata.Pairs("x-trailer", "done"))
	return nil
}

func fail(ss grpc.ServerStream) error {
	var in []byte
	if err := ss.RecvMsg(&in); err != nil {
		return err
	}
	ss.SetTrailer(metadata.Pairs("x-reason", "invalid"))
	return status.Error(codes.InvalidArgument, "bad payload")
}

// stream sends N numbered messages, N parsed from the request.
func stream(ss grpc.ServerStream) error {
	var in []byte
	if err := ss.RecvMsg(&in); err != nil {
		return err
	}
	n, err := strconv.Atoi(string(in))
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "count: %v", err)
	}
	for i := 0; i < n; i++ {
		if err := ss.SendMsg([]byte(strconv.Itoa(i))); err != nil {
			return err
		}
	}
	ss.SetTrailer(metadata.Pairs("x-count", strconv.Itoa(n)))
	return nil
}

// infinite streams until the client goes away.
func infinite(ss grpc.ServerStream) error {
	var in []byte
	if err := ss.RecvMsg(&in); err != nil {
		return err
	}
	for i := 0; ; i++ {
		if err := ss.SendMsg([]byte(strconv.Itoa(i))); err != nil {
			return err
		}
		if err := ss.Context().Err(); err != nil {
			return status.FromContextError(err).Err()
		}
	}
}

// collect joins every client message once the client half-closes.
func collect(ss grpc.ServerStream) error {
	var parts []string
	for {
		var in []byte
		err := ss.RecvMsg(&in)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		parts = append(parts, string(in))
	}
	ss.SetTrailer(metadata.Pairs("x-parts", strconv.Itoa(len(parts))))
	return ss.SendMsg([]byte(strings.Join(parts, ",")))
}

// hang sends headers then blocks until cancelled.
func hang(ss grpc.ServerStream) error {
	if err := ss.SendHeader(metadata.Pairs("x-server", "hang")); err != nil {
		return err
	}
	<-ss.Context().Done()
	return status.FromContextError(ss.Context().Err()).Err()
}

// mirror returns the request's x- metadata as trailers.
func mirror(ss grpc.ServerStream) error {
	var in []byte
	if err := ss.RecvMsg(&in); err != nil {
		return err
	}
	md, _ := metadata.FromIncomingContext(ss.Context())
	out := metadata.MD{}
	for k, v := range md {
		if strings.HasPrefix(k, "x-") {
			out[k] = v
		}
	}
	ss.SetTrailer(out)
	return ss.SendMsg(in)
}

type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	default:
		return nil, fmt.Errorf("raw codec: cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "proto" }

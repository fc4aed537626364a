package native

import (
	"context"
	"fmt"
	"time"

	"costa/internal/transport"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "costa.native.v1.Package"

const (
	describeMethod = "/" + ServiceName + "/Describe"
	callMethod     = "/" + ServiceName + "/Call"
)

// Remote is a package served by an out-of-process package host.
type Remote struct {
	conn    *grpc.ClientConn
	name    string
	funcs   []string
	timeout time.Duration
}

// DialRemote connects to a package host, waits for it to report serving and
// reads the package's function list.
func DialRemote(ctx context.Context, target string, timeout time.Duration, opts ...grpc.DialOption) (*Remote, error) {
	conn, err := transport.Dial(target, opts...)
	if err != nil {
		return nil, err
	}
	r := &Remote{conn: conn, timeout: timeout}
	if err := r.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("native: %s: %w", target, err)
	}
	return r, nil
}

func (r *Remote) handshake(ctx context.Context) error {
	cctx, cancel := transport.WithTimeout(ctx, r.timeout)
	defer cancel()

	hc, err := healthpb.NewHealthClient(r.conn).Check(cctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health: status %s", hc.GetStatus())
	}

	desc := &structpb.Struct{}
	if err := r.conn.Invoke(cctx, describeMethod, &emptypb.Empty{}, desc); err != nil {
		return fmt.Errorf("describe: %w", err)
	}
	r.name = desc.GetFields()["name"].GetStringValue()
	for _, v := range desc.GetFields()["functions"].GetListValue().GetValues() {
		r.funcs = append(r.funcs, v.GetStringValue())
	}
	return nil
}

func (r *Remote) Name() string        { return r.name }
func (r *Remote) Functions() []string { return append([]string(nil), r.funcs...) }

func (r *Remote) Call(ctx context.Context, fn string, args []any) (any, error) {
	list, err := structpb.NewList(args)
	if err != nil {
		return nil, fmt.Errorf("native: %s.%s: encode args: %w", r.name, fn, err)
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"function": structpb.NewStringValue(fn),
		"args":     structpb.NewListValue(list),
	}}

	cctx, cancel := transport.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp := &structpb.Struct{}
	if err := r.conn.Invoke(cctx, callMethod, req, resp); err != nil {
		return nil, fmt.Errorf("native: %s.%s: %w", r.name, fn, err)
	}
	return resp.GetFields()["result"].AsInterface(), nil
}

func (r *Remote) Close() error { return r.conn.Close() }

package native

import (
	"context"
	"errors"

	"costa/internal/costa"
	"costa/internal/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type packageServer interface {
	Describe(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Call(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var packageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*packageServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: describeHandler},
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "costa/native/v1/package.proto",
}

// RegisterPackage serves pkg under name on s together with the standard
// health service.
func RegisterPackage(s *grpc.Server, name string, pkg costa.FuncSet) {
	s.RegisterService(&packageServiceDesc, &pkgServer{name: name, pkg: pkg})

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
}

type pkgServer struct {
	name string
	pkg  costa.FuncSet
}

func (p *pkgServer) Describe(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	fns := p.pkg.Functions()
	list := make([]any, len(fns))
	for i, f := range fns {
		list[i] = f
	}
	out, err := structpb.NewStruct(map[string]any{"name": p.name, "functions": list})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (p *pkgServer) Call(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fn := in.GetFields()["function"].GetStringValue()
	if fn == "" {
		return nil, status.Error(codes.InvalidArgument, "function is required")
	}
	args := in.GetFields()["args"].GetListValue().AsSlice()

	res, err := p.pkg.Call(ctx, fn, args)
	if err != nil {
		var ufe *UnknownFunctionError
		if errors.As(err, &ufe) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		logging.L().Debug("native call failed", "package", p.name, "function", fn, "err", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	v, err := structpb.NewValue(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result of %s: %v", fn, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"result": v}}, nil
}

func describeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(packageServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(packageServer).Describe(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(packageServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(packageServer).Call(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

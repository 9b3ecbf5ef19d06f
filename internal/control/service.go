// Package control exposes a running node over gRPC so that a separate
// process can reserve, release and watch resources. Messages are protobuf
// well-known types, so no generated code is needed.
package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "peerreserve.control.v1.Control"

const (
	reserveMethod   = "/" + ServiceName + "/Reserve"
	unreserveMethod = "/" + ServiceName + "/Unreserve"
	inventoryMethod = "/" + ServiceName + "/Inventory"
	peersMethod     = "/" + ServiceName + "/Peers"
	watchMethod     = "/" + ServiceName + "/Watch"
)

// ControlServer is the server API of the control service.
type ControlServer interface {
	Reserve(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Unreserve(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Inventory(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Peers(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Watch(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&serviceDesc, srv)
}

func reserveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Reserve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: reserveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Reserve(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func unreserveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Unreserve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: unreserveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Unreserve(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func inventoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Inventory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: inventoryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Inventory(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func peersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Peers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: peersMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Peers(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).Watch(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reserve", Handler: reserveHandler},
		{MethodName: "Unreserve", Handler: unreserveHandler},
		{MethodName: "Inventory", Handler: inventoryHandler},
		{MethodName: "Peers", Handler: peersHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "peerreserve/control/v1/control.proto",
}

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "intersection.v1.Simulation"

// Full method names, for clients using Invoke and NewStream directly.
const (
	MethodGetStatistics   = "/" + ServiceName + "/GetStatistics"
	MethodGetExport       = "/" + ServiceName + "/GetExport"
	MethodWatchStatistics = "/" + ServiceName + "/WatchStatistics"
)

type simulationServer interface {
	GetStatistics(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetExport(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchStatistics(*emptypb.Empty, grpc.ServerStream) error
}

func unary(method string, call func(simulationServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(simulationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(simulationServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchStatisticsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(simulationServer).WatchStatistics(in, stream)
}

// WatchStatisticsDesc describes the server stream for client NewStream calls.
var WatchStatisticsDesc = grpc.StreamDesc{
	StreamName:    "WatchStatistics",
	Handler:       watchStatisticsHandler,
	ServerStreams: true,
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*simulationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatistics",
			Handler:    unary(MethodGetStatistics, simulationServer.GetStatistics),
		},
		{
			MethodName: "GetExport",
			Handler:    unary(MethodGetExport, simulationServer.GetExport),
		},
	},
	Streams:  []grpc.StreamDesc{WatchStatisticsDesc},
	Metadata: "intersection/v1/simulation.proto",
}

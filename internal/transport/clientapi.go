package transport

import (
	"context"

	"google.golang.org/grpc"

	"github.com/relaycc/relaycc/internal/pb"
)

// ClientAPIServiceName is the client-facing service of spec §4.E:
// Dispatch, AwaitWorker, NextResult as three plain unary RPCs.
const ClientAPIServiceName = "relaycc.ClientAPI"

// ClientAPIServer is implemented by whatever sits in front of a
// producer.Producer and exposes its three client-facing calls over the
// network (relaycc-producer's own process, in this module).
type ClientAPIServer interface {
	Dispatch(context.Context, *pb.DispatchRequest) (*pb.DispatchResponse, error)
	AwaitWorker(context.Context, *pb.AwaitWorkerRequest) (*pb.Empty, error)
	NextResult(context.Context, *pb.Empty) (*pb.NextResultResponse, error)
}

func _ClientAPI_Dispatch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(pb.DispatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClientAPIServer).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ClientAPIServiceName + "/Dispatch"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClientAPIServer).Dispatch(ctx, req.(*pb.DispatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ClientAPI_AwaitWorker_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(pb.AwaitWorkerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClientAPIServer).AwaitWorker(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ClientAPIServiceName + "/AwaitWorker"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClientAPIServer).AwaitWorker(ctx, req.(*pb.AwaitWorkerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ClientAPI_NextResult_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(pb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClientAPIServer).NextResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ClientAPIServiceName + "/NextResult"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClientAPIServer).NextResult(ctx, req.(*pb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ClientAPIServiceDesc is the grpc.ServiceDesc protoc-gen-go-grpc would
// emit for three unary RPCs.
var ClientAPIServiceDesc = grpc.ServiceDesc{
	ServiceName: ClientAPIServiceName,
	HandlerType: (*ClientAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: _ClientAPI_Dispatch_Handler},
		{MethodName: "AwaitWorker", Handler: _ClientAPI_AwaitWorker_Handler},
		{MethodName: "NextResult", Handler: _ClientAPI_NextResult_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relaycc/clientapi.proto",
}

// RegisterClientAPIServer registers srv on s.
func RegisterClientAPIServer(s grpc.ServiceRegistrar, srv ClientAPIServer) {
	s.RegisterService(&ClientAPIServiceDesc, srv)
}

// ClientAPIClient is the relaycc CLI's view of the producer.
type ClientAPIClient interface {
	Dispatch(ctx context.Context, in *pb.DispatchRequest, opts ...grpc.CallOption) (*pb.DispatchResponse, error)
	AwaitWorker(ctx context.Context, in *pb.AwaitWorkerRequest, opts ...grpc.CallOption) (*pb.Empty, error)
	NextResult(ctx context.Context, in *pb.Empty, opts ...grpc.CallOption) (*pb.NextResultResponse, error)
}

type clientAPIClient struct {
	cc grpc.ClientConnInterface
}

// NewClientAPIClient wraps an established connection.
func NewClientAPIClient(cc grpc.ClientConnInterface) ClientAPIClient {
	return &clientAPIClient{cc: cc}
}

func (c *clientAPIClient) Dispatch(ctx context.Context, in *pb.DispatchRequest, opts ...grpc.CallOption) (*pb.DispatchResponse, error) {
	opts = append(opts, grpc.CallContentSubtype(codecName))
	out := new(pb.DispatchResponse)
	if err := c.cc.Invoke(ctx, "/"+ClientAPIServiceName+"/Dispatch", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clientAPIClient) AwaitWorker(ctx context.Context, in *pb.AwaitWorkerRequest, opts ...grpc.CallOption) (*pb.Empty, error) {
	opts = append(opts, grpc.CallContentSubtype(codecName))
	out := new(pb.Empty)
	if err := c.cc.Invoke(ctx, "/"+ClientAPIServiceName+"/AwaitWorker", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clientAPIClient) NextResult(ctx context.Context, in *pb.Empty, opts ...grpc.CallOption) (*pb.NextResultResponse, error) {
	opts = append(opts, grpc.CallContentSubtype(codecName))
	out := new(pb.NextResultResponse)
	if err := c.cc.Invoke(ctx, "/"+ClientAPIServiceName+"/NextResult", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

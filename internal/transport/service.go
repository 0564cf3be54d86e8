package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully-qualified gRPC service name, matching the
// "relaycc.CompilerService" schema §6 describes in proto form.
const ServiceName = "relaycc.CompilerService"

// CompilerServiceServer is implemented by the producer's stream-accept
// handler. Connect is called once per worker connection and blocks for
// the stream's lifetime.
type CompilerServiceServer interface {
	Connect(CompilerService_ConnectServer) error
}

// UnimplementedCompilerServiceServer can be embedded in a server
// implementation to satisfy CompilerServiceServer with an Unimplemented
// response, mirroring protoc-gen-go-grpc's forward-compatibility stub.
type UnimplementedCompilerServiceServer struct{}

func (UnimplementedCompilerServiceServer) Connect(CompilerService_ConnectServer) error {
	return status.Error(codes.Unimplemented, "method Connect not implemented")
}

// CompilerService_ConnectServer is the server-side view of one worker's
// stream: Send pushes a CompileRequest frame to the worker, Recv blocks
// for the worker's next frame (a registration, then a sequence of
// results).
type CompilerService_ConnectServer interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ServerStream
}

type compilerServiceConnectServer struct {
	grpc.ServerStream
}

func (x *compilerServiceConnectServer) Send(f *Frame) error {
	return x.ServerStream.SendMsg(f)
}

func (x *compilerServiceConnectServer) Recv() (*Frame, error) {
	f := new(Frame)
	if err := x.ServerStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

func _CompilerService_Connect_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(CompilerServiceServer).Connect(&compilerServiceConnectServer{ServerStream: stream})
}

// ServiceDesc is the grpc.ServiceDesc that would normally be emitted by
// protoc-gen-go-grpc for a service with a single bidirectional-streaming
// RPC.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CompilerServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       _CompilerService_Connect_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "relaycc/compiler.proto",
}

// RegisterCompilerServiceServer registers srv's Connect implementation on
// s, the same call shape protoc-gen-go-grpc generates.
func RegisterCompilerServiceServer(s grpc.ServiceRegistrar, srv CompilerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// CompilerServiceClient is implemented by worker connections; Connect
// opens the bidirectional stream to the producer.
type CompilerServiceClient interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (CompilerService_ConnectClient, error)
}

type compilerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCompilerServiceClient wraps an established connection.
func NewCompilerServiceClient(cc grpc.ClientConnInterface) CompilerServiceClient {
	return &compilerServiceClient{cc: cc}
}

func (c *compilerServiceClient) Connect(ctx context.Context, opts ...grpc.CallOption) (CompilerService_ConnectClient, error) {
	opts = append(opts, grpc.CallContentSubtype(codecName))
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Connect", opts...)
	if err != nil {
		return nil, err
	}
	return &compilerServiceConnectClient{ClientStream: stream}, nil
}

// CompilerService_ConnectClient is the worker-side view of its own
// stream: Send pushes a registration or result frame, Recv blocks for the
// producer's next compile request.
type CompilerService_ConnectClient interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ClientStream
}

type compilerServiceConnectClient struct {
	grpc.ClientStream
}

func (x *compilerServiceConnectClient) Send(f *Frame) error {
	return x.ClientStream.SendMsg(f)
}

func (x *compilerServiceConnectClient) Recv() (*Frame, error) {
	f := new(Frame)
	if err := x.ClientStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Dial opens a gRPC connection to addr; callers supply transport
// credentials via opts (grpc.WithTransportCredentials(insecure.NewCredentials())
// for plaintext LAN use, matching the teacher's internal/grpc/client
// default).
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, opts...)
}

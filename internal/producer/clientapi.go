package producer

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/relaycc/relaycc/internal/pb"
)

// ClientAPIServer adapts a Producer to transport.ClientAPIServer,
// translating Go errors into gRPC status codes for the three
// client-facing RPCs (spec §4.E).
type ClientAPIServer struct {
	producer *Producer
}

// NewClientAPIServer wraps p for network exposure.
func NewClientAPIServer(p *Producer) *ClientAPIServer {
	return &ClientAPIServer{producer: p}
}

func (s *ClientAPIServer) Dispatch(ctx context.Context, req *pb.DispatchRequest) (*pb.DispatchResponse, error) {
	token, err := s.producer.Dispatch(ctx, req.Lang, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoWorkers):
			return nil, status.Error(codes.Unavailable, err.Error())
		case errors.Is(err, ErrNoMatchingWorkers):
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		default:
			return nil, status.Error(codes.Internal, err.Error())
		}
	}
	return &pb.DispatchResponse{Token: token}, nil
}

func (s *ClientAPIServer) AwaitWorker(ctx context.Context, req *pb.AwaitWorkerRequest) (*pb.Empty, error) {
	if err := s.producer.AwaitWorker(ctx, req.Lang); err != nil {
		return nil, status.Error(codes.DeadlineExceeded, err.Error())
	}
	return &pb.Empty{}, nil
}

func (s *ClientAPIServer) NextResult(ctx context.Context, _ *pb.Empty) (*pb.NextResultResponse, error) {
	result, err := s.producer.NextResult(ctx)
	if err != nil {
		return nil, status.Error(codes.DeadlineExceeded, err.Error())
	}
	return &pb.NextResultResponse{
		Token:   result.Token,
		Success: result.Success,
		Output:  result.Output,
	}, nil
}

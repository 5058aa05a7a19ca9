package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries the caller's request id, generated when absent.
const RequestIDHeader = "x-request-id"

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var id string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 {
			id = v[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx = logging.WithRequestID(ctx, id)

	started := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)

	args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(started)}
	switch code {
	case codes.OK:
		s.logger.Info(ctx, "request", args...)
	case codes.Internal, codes.DataLoss, codes.Unknown:
		s.logger.Error(ctx, "request failed", append(args, "error", err)...)
	default:
		s.logger.Warn(ctx, "request rejected", append(args, "error", err)...)
	}
	return resp, err
}

func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}

func errorInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

// toStatus maps service errors to gRPC status codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, common.ErrorNotFound):
		code = codes.NotFound
	case errors.Is(err, common.ErrNameConflict):
		code = codes.AlreadyExists
	case errors.Is(err, common.ErrFolderConflict):
		code = codes.FailedPrecondition
	case errors.Is(err, common.ErrHoldPending), errors.Is(err, common.ErrObjectNotVisible):
		code = codes.Unavailable
	case errors.Is(err, common.ErrInvalidArgument), errors.Is(err, common.ErrInvalidPath):
		code = codes.InvalidArgument
	case errors.Is(err, common.ErrIntegrity):
		code = codes.DataLoss
	case errors.Is(err, common.ErrVersionConflict):
		code = codes.Aborted
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		return status.Error(codes.Internal, common.ErrorInternal.Error())
	}
	return status.Error(code, err.Error())
}

package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name. The messages are
// described in api/evidence/v1/evidence.proto.
const ServiceName = "evidence.v1.Evidence"

// Operation enumerates the methods of the Evidence API.
type Operation uint8

const (
	OpListFiles Operation = iota
	OpDescribeFile
	OpAssociate
	OpDisassociate
	OpDownloadURL
	OpListRecent
	OpRegisterExecution
	OpNotifyPartCompleted
	OpNotifyObjectCreated
)

var operationNames = [...]string{
	OpListFiles:           "ListFiles",
	OpDescribeFile:        "DescribeFile",
	OpAssociate:           "Associate",
	OpDisassociate:        "Disassociate",
	OpDownloadURL:         "DownloadURL",
	OpListRecent:          "ListRecent",
	OpRegisterExecution:   "RegisterExecution",
	OpNotifyPartCompleted: "NotifyPartCompleted",
	OpNotifyObjectCreated: "NotifyObjectCreated",
}

func (o Operation) String() string { return operationNames[o] }

// FullMethod is the method path used on the wire.
func (o Operation) FullMethod() string { return "/" + ServiceName + "/" + o.String() }

// EvidenceServer is the server side of the Evidence API.
type EvidenceServer interface {
	ListFiles(context.Context, *ListFilesRequest) (*ListFilesResponse, error)
	DescribeFile(context.Context, *DescribeFileRequest) (*DescribeFileResponse, error)
	Associate(context.Context, *AssociateRequest) (*AssociateResponse, error)
	Disassociate(context.Context, *DisassociateRequest) (*DisassociateResponse, error)
	DownloadURL(context.Context, *DownloadURLRequest) (*DownloadURLResponse, error)
	ListRecent(context.Context, *ListRecentRequest) (*ListFilesResponse, error)
	RegisterExecution(context.Context, *RegisterExecutionRequest) (*RegisterExecutionResponse, error)
	NotifyPartCompleted(context.Context, *NotifyPartCompletedRequest) (*Accepted, error)
	NotifyObjectCreated(context.Context, *NotifyObjectCreatedRequest) (*Accepted, error)
}

// serviceDesc binds every Operation to its handler.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EvidenceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(OpListFiles, EvidenceServer.ListFiles),
		unary(OpDescribeFile, EvidenceServer.DescribeFile),
		unary(OpAssociate, EvidenceServer.Associate),
		unary(OpDisassociate, EvidenceServer.Disassociate),
		unary(OpDownloadURL, EvidenceServer.DownloadURL),
		unary(OpListRecent, EvidenceServer.ListRecent),
		unary(OpRegisterExecution, EvidenceServer.RegisterExecution),
		unary(OpNotifyPartCompleted, EvidenceServer.NotifyPartCompleted),
		unary(OpNotifyObjectCreated, EvidenceServer.NotifyObjectCreated),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "evidence/v1/evidence.json",
}

// RegisterEvidenceServer registers srv on s.
func RegisterEvidenceServer(s grpc.ServiceRegistrar, srv EvidenceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unary[Req, Resp any](op Operation, fn func(EvidenceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: op.String(),
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(EvidenceServer)
			if interceptor == nil {
				return fn(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: op.FullMethod()}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(*Req))
			})
		},
	}
}

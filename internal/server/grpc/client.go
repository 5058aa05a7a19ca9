package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls the Evidence API over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, op Operation, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	if err := cc.Invoke(ctx, op.FullMethod(), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListFiles(ctx context.Context, in *ListFilesRequest, opts ...grpc.CallOption) (*ListFilesResponse, error) {
	return invoke[ListFilesResponse](ctx, c.cc, OpListFiles, in, opts...)
}

func (c *Client) DescribeFile(ctx context.Context, in *DescribeFileRequest, opts ...grpc.CallOption) (*DescribeFileResponse, error) {
	return invoke[DescribeFileResponse](ctx, c.cc, OpDescribeFile, in, opts...)
}

func (c *Client) Associate(ctx context.Context, in *AssociateRequest, opts ...grpc.CallOption) (*AssociateResponse, error) {
	return invoke[AssociateResponse](ctx, c.cc, OpAssociate, in, opts...)
}

func (c *Client) Disassociate(ctx context.Context, in *DisassociateRequest, opts ...grpc.CallOption) (*DisassociateResponse, error) {
	return invoke[DisassociateResponse](ctx, c.cc, OpDisassociate, in, opts...)
}

func (c *Client) DownloadURL(ctx context.Context, in *DownloadURLRequest, opts ...grpc.CallOption) (*DownloadURLResponse, error) {
	return invoke[DownloadURLResponse](ctx, c.cc, OpDownloadURL, in, opts...)
}

func (c *Client) ListRecent(ctx context.Context, in *ListRecentRequest, opts ...grpc.CallOption) (*ListFilesResponse, error) {
	return invoke[ListFilesResponse](ctx, c.cc, OpListRecent, in, opts...)
}

func (c *Client) RegisterExecution(ctx context.Context, in *RegisterExecutionRequest, opts ...grpc.CallOption) (*RegisterExecutionResponse, error) {
	return invoke[RegisterExecutionResponse](ctx, c.cc, OpRegisterExecution, in, opts...)
}

func (c *Client) NotifyPartCompleted(ctx context.Context, in *NotifyPartCompletedRequest, opts ...grpc.CallOption) (*Accepted, error) {
	return invoke[Accepted](ctx, c.cc, OpNotifyPartCompleted, in, opts...)
}

func (c *Client) NotifyObjectCreated(ctx context.Context, in *NotifyObjectCreatedRequest, opts ...grpc.CallOption) (*Accepted, error) {
	return invoke[Accepted](ctx, c.cc, OpNotifyObjectCreated, in, opts...)
}

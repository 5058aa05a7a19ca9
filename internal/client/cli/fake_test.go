package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/client/config"
	evgrpc "github.com/dmitrijs2005/evidencekeeper/internal/server/grpc"
	"google.golang.org/grpc"
)

type fakeAPI struct {
	pages     map[string]*evgrpc.ListFilesResponse
	files     map[string]evgrpc.File
	err       error
	listCalls []*evgrpc.ListFilesRequest
	recentReq *evgrpc.ListRecentRequest
	assocReq  *evgrpc.AssociateRequest
	disReq    *evgrpc.DisassociateRequest
	execReq   *evgrpc.RegisterExecutionRequest
	deadline  bool
}

func (f *fakeAPI) ListFiles(ctx context.Context, in *evgrpc.ListFilesRequest, _ ...grpc.CallOption) (*evgrpc.ListFilesResponse, error) {
	_, f.deadline = ctx.Deadline()
	f.listCalls = append(f.listCalls, in)
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.pages[in.Path+"|"+in.PageToken]; ok {
		return resp, nil
	}
	return &evgrpc.ListFilesResponse{}, nil
}

func (f *fakeAPI) ListRecent(_ context.Context, in *evgrpc.ListRecentRequest, _ ...grpc.CallOption) (*evgrpc.ListFilesResponse, error) {
	f.recentReq = in
	if f.err != nil {
		return nil, f.err
	}
	return &evgrpc.ListFilesResponse{Files: []evgrpc.File{{ID: "f2", Name: "new.txt"}}}, nil
}

func (f *fakeAPI) DescribeFile(_ context.Context, in *evgrpc.DescribeFileRequest, _ ...grpc.CallOption) (*evgrpc.DescribeFileResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &evgrpc.DescribeFileResponse{File: f.files[in.FileID]}, nil
}

func (f *fakeAPI) Associate(_ context.Context, in *evgrpc.AssociateRequest, _ ...grpc.CallOption) (*evgrpc.AssociateResponse, error) {
	f.assocReq = in
	if f.err != nil {
		return nil, f.err
	}
	return &evgrpc.AssociateResponse{Created: len(in.FileIDs) * len(in.CaseIDs)}, nil
}

func (f *fakeAPI) Disassociate(_ context.Context, in *evgrpc.DisassociateRequest, _ ...grpc.CallOption) (*evgrpc.DisassociateResponse, error) {
	f.disReq = in
	if f.err != nil {
		return nil, f.err
	}
	return &evgrpc.DisassociateResponse{Removed: len(in.CaseIDs)}, nil
}

func (f *fakeAPI) DownloadURL(_ context.Context, in *evgrpc.DownloadURLRequest, _ ...grpc.CallOption) (*evgrpc.DownloadURLResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &evgrpc.DownloadURLResponse{URL: "https://blobs.example/" + in.Owner.ID + "/" + in.FileID}, nil
}

func (f *fakeAPI) RegisterExecution(_ context.Context, in *evgrpc.RegisterExecutionRequest, _ ...grpc.CallOption) (*evgrpc.RegisterExecutionResponse, error) {
	f.execReq = in
	if f.err != nil {
		return nil, f.err
	}
	id := in.ExecutionID
	if id == "" {
		id = "generated"
	}
	return &evgrpc.RegisterExecutionResponse{ExecutionID: id, VaultID: in.VaultID, DestinationFolder: in.DestinationFolder}, nil
}

func newTestApp(t *testing.T, api *fakeAPI) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &App{
		config: &config.Config{RequestTimeout: time.Second},
		api:    api,
		out:    &out,
		cwd:    "/",
	}, &out
}

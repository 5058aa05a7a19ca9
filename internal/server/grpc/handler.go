package grpc

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

func (s *GRPCServer) ListFiles(ctx context.Context, req *ListFilesRequest) (*ListFilesResponse, error) {
	owner, err := req.Owner.owner()
	if err != nil {
		return nil, err
	}
	page, err := s.svc.Catalog.ListPage(ctx, owner, req.Path, req.PageToken, req.PageSize)
	if err != nil {
		return nil, err
	}
	return &ListFilesResponse{Files: filesFromNodes(page.Items), NextPageToken: page.NextPageToken}, nil
}

func (s *GRPCServer) ListRecent(ctx context.Context, req *ListRecentRequest) (*ListFilesResponse, error) {
	owner, err := req.Owner.owner()
	if err != nil {
		return nil, err
	}
	page, err := s.svc.Catalog.ListByCreation(ctx, owner, req.PageToken, req.PageSize)
	if err != nil {
		return nil, err
	}
	return &ListFilesResponse{Files: filesFromNodes(page.Items), NextPageToken: page.NextPageToken}, nil
}

func (s *GRPCServer) DescribeFile(ctx context.Context, req *DescribeFileRequest) (*DescribeFileResponse, error) {
	owner, err := req.Owner.owner()
	if err != nil {
		return nil, err
	}
	n, err := s.svc.Catalog.Describe(ctx, owner, req.FileID)
	if err != nil {
		return nil, err
	}
	return &DescribeFileResponse{File: fileFromNode(n)}, nil
}

func (s *GRPCServer) Associate(ctx context.Context, req *AssociateRequest) (*AssociateResponse, error) {
	created, err := s.svc.Associations.Associate(ctx, req.VaultID, req.FileIDs, req.CaseIDs)
	if err != nil {
		return nil, err
	}
	return &AssociateResponse{Created: created}, nil
}

func (s *GRPCServer) Disassociate(ctx context.Context, req *DisassociateRequest) (*DisassociateResponse, error) {
	removed, err := s.svc.Associations.Disassociate(ctx, req.VaultID, req.FileID, req.CaseIDs)
	if err != nil {
		return nil, err
	}
	return &DisassociateResponse{Removed: removed}, nil
}

func (s *GRPCServer) DownloadURL(ctx context.Context, req *DownloadURLRequest) (*DownloadURLResponse, error) {
	owner, err := req.Owner.owner()
	if err != nil {
		return nil, err
	}
	if req.FileID == "" {
		return nil, fmt.Errorf("%w: file id is required", common.ErrInvalidArgument)
	}
	url, err := s.svc.Downloads.DownloadURL(ctx, owner, req.FileID)
	if err != nil {
		return nil, err
	}
	return &DownloadURLResponse{URL: url}, nil
}

func (s *GRPCServer) RegisterExecution(ctx context.Context, req *RegisterExecutionRequest) (*RegisterExecutionResponse, error) {
	e, err := s.svc.Catalog.RegisterExecution(ctx, &models.Execution{
		ID:                req.ExecutionID,
		VaultID:           req.VaultID,
		DestinationFolder: req.DestinationFolder,
	})
	if err != nil {
		return nil, err
	}
	return &RegisterExecutionResponse{
		ExecutionID:       e.ID,
		VaultID:           e.VaultID,
		DestinationFolder: e.DestinationFolder,
		CreatedAt:         e.CreatedAt,
	}, nil
}

func (s *GRPCServer) NotifyPartCompleted(ctx context.Context, req *NotifyPartCompletedRequest) (*Accepted, error) {
	ev := req.Event
	if ev.ObjectKey == "" || ev.VaultID == "" || ev.PartIndex < models.FirstPartIndex {
		return nil, fmt.Errorf("%w: object key, vault and part index are required", common.ErrInvalidArgument)
	}
	if err := s.svc.Events.PublishPartCompleted(ctx, ev); err != nil {
		return nil, err
	}
	return &Accepted{}, nil
}

func (s *GRPCServer) NotifyObjectCreated(ctx context.Context, req *NotifyObjectCreatedRequest) (*Accepted, error) {
	ev := req.Event
	if ev.ObjectKey == "" || ev.VaultID == "" {
		return nil, fmt.Errorf("%w: object key and vault are required", common.ErrInvalidArgument)
	}
	if err := s.svc.Events.PublishObjectCreated(ctx, ev); err != nil {
		return nil, err
	}
	return &Accepted{}, nil
}

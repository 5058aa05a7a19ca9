package grpc

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

// OwnerRef names a vault or case tree on the wire.
type OwnerRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (o OwnerRef) owner() (models.Owner, error) {
	if o.ID == "" {
		return models.Owner{}, fmt.Errorf("%w: owner id is required", common.ErrInvalidArgument)
	}
	switch models.OwnerKind(o.Kind) {
	case models.OwnerVault:
		return models.VaultOwner(o.ID), nil
	case models.OwnerCase:
		return models.CaseOwner(o.ID), nil
	}
	return models.Owner{}, fmt.Errorf("%w: owner kind %q", common.ErrInvalidArgument, o.Kind)
}

type ScopedCase struct {
	CaseID   string `json:"case_id"`
	CaseName string `json:"case_name"`
}

// File is a folder or file of a catalog tree.
type File struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Path          string       `json:"path"`
	IsFolder      bool         `json:"is_folder"`
	Size          int64        `json:"size,omitempty"`
	ContentType   string       `json:"content_type,omitempty"`
	ContentHash   string       `json:"content_hash,omitempty"`
	HoldStatus    string       `json:"hold_status,omitempty"`
	ObjectVersion string       `json:"object_version,omitempty"`
	ExecutionID   string       `json:"execution_id,omitempty"`
	SourceVaultID string       `json:"source_vault_id,omitempty"`
	SourceFileID  string       `json:"source_file_id,omitempty"`
	ScopedCases   []ScopedCase `json:"scoped_cases,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func fileFromNode(n *models.Node) File {
	f := File{
		ID:            n.ID,
		Name:          n.Name,
		Path:          n.Path,
		IsFolder:      !n.IsFile,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
		SourceVaultID: n.SourceVaultID,
		SourceFileID:  n.SourceFileID,
	}
	if !n.IsFile {
		return f
	}
	f.Size = n.Size
	f.ContentType = n.ContentType
	f.ContentHash = n.ContentHash
	f.ExecutionID = n.ExecutionID
	if n.Owner.Kind == models.OwnerVault {
		f.HoldStatus = string(n.HoldStatus)
		f.ObjectVersion = n.ObjectVersion
	}
	for _, sc := range n.ScopedCases {
		f.ScopedCases = append(f.ScopedCases, ScopedCase{CaseID: sc.CaseID, CaseName: sc.CaseName})
	}
	return f
}

func filesFromNodes(nodes []*models.Node) []File {
	out := make([]File, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, fileFromNode(n))
	}
	return out
}

type ListFilesRequest struct {
	Owner     OwnerRef `json:"owner"`
	Path      string   `json:"path"`
	PageToken string   `json:"page_token,omitempty"`
	PageSize  int      `json:"page_size,omitempty"`
}

type ListFilesResponse struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

type ListRecentRequest struct {
	Owner     OwnerRef `json:"owner"`
	PageToken string   `json:"page_token,omitempty"`
	PageSize  int      `json:"page_size,omitempty"`
}

type DescribeFileRequest struct {
	Owner  OwnerRef `json:"owner"`
	FileID string   `json:"file_id"`
}

type DescribeFileResponse struct {
	File File `json:"file"`
}

type AssociateRequest struct {
	VaultID string   `json:"vault_id"`
	FileIDs []string `json:"file_ids"`
	CaseIDs []string `json:"case_ids"`
}

type AssociateResponse struct {
	Created int `json:"created"`
}

type DisassociateRequest struct {
	VaultID string   `json:"vault_id"`
	FileID  string   `json:"file_id"`
	CaseIDs []string `json:"case_ids"`
}

type DisassociateResponse struct {
	Removed int `json:"removed"`
}

type DownloadURLRequest struct {
	Owner  OwnerRef `json:"owner"`
	FileID string   `json:"file_id"`
}

type DownloadURLResponse struct {
	URL string `json:"url"`
}

type RegisterExecutionRequest struct {
	ExecutionID       string `json:"execution_id,omitempty"`
	VaultID           string `json:"vault_id"`
	DestinationFolder string `json:"destination_folder"`
}

type RegisterExecutionResponse struct {
	ExecutionID       string    `json:"execution_id"`
	VaultID           string    `json:"vault_id"`
	DestinationFolder string    `json:"destination_folder"`
	CreatedAt         time.Time `json:"created_at"`
}

type NotifyPartCompletedRequest struct {
	Event models.PartCompleted `json:"event"`
}

type NotifyObjectCreatedRequest struct {
	Event models.ObjectCreated `json:"event"`
}

// Accepted acknowledges an event handed to the work queue.
type Accepted struct{}

// Package models defines the catalog records and ingestion events shared by
// the repositories, the services and the transport layer.
package models

import "time"

// Vault is an ingestion-staging namespace for bulk-transferred files.
type Vault struct {
	ID          string
	Name        string
	Description string
	ObjectCount int64
	TotalSize   int64
	CreatedAt   time.Time
}

// Case is an investigative record files get associated with.
type Case struct {
	ID          string
	Name        string
	Status      string
	ObjectCount int64
	CreatedAt   time.Time
}

// OwnerKind tells which kind of tree a catalog node belongs to.
type OwnerKind string

const (
	OwnerVault OwnerKind = "vault"
	OwnerCase  OwnerKind = "case"
)

// Owner identifies a Vault or a Case tree.
type Owner struct {
	Kind OwnerKind
	ID   string
}

func VaultOwner(id string) Owner { return Owner{Kind: OwnerVault, ID: id} }
func CaseOwner(id string) Owner  { return Owner{Kind: OwnerCase, ID: id} }

func (o Owner) String() string { return string(o.Kind) + ":" + o.ID }

// HoldStatus tracks the legal hold of the object behind a vault leaf.
type HoldStatus string

const (
	HoldNone    HoldStatus = "none"
	HoldPending HoldStatus = "pending"
	HoldApplied HoldStatus = "applied"
)

// ScopedCase is a case a vault file is currently associated with. The case
// name is denormalized for display.
type ScopedCase struct {
	CaseID   string `json:"case_id"`
	CaseName string `json:"case_name"`
}

// Node is one record of a Vault or Case tree: a folder (IsFile false) or a
// leaf. A folder's own path is Path+Name+"/".
//
// Vault leaves carry the object key, the hold status and the scoped-case
// set. Case leaves point back to their source through SourceVaultID and
// SourceFileID.
type Node struct {
	ID     string
	Owner  Owner
	Name   string
	Path   string
	IsFile bool

	Size        int64
	ContentType string
	ContentHash string
	ExecutionID string

	// ObjectVersion is the blob store version the hold status refers to.
	ObjectKey     string
	ObjectVersion string
	HoldStatus    HoldStatus

	SourceVaultID string
	SourceFileID  string

	// ChildCount is the number of direct children of a folder.
	ChildCount  int64
	ScopedCases []ScopedCase

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasScopedCase reports whether caseID is in the scoped-case set.
func (n *Node) HasScopedCase(caseID string) bool {
	for _, sc := range n.ScopedCases {
		if sc.CaseID == caseID {
			return true
		}
	}
	return false
}

// LeafAttrs are the mutable attributes written by an upsert.
type LeafAttrs struct {
	Size          int64
	ContentType   string
	ContentHash   string
	ExecutionID   string
	ObjectKey     string
	ObjectVersion string
	HoldStatus    HoldStatus
	SourceVaultID string
	SourceFileID  string
}

// Execution is one run of an external bulk-transfer job that populates a
// vault under DestinationFolder.
type Execution struct {
	ID                string
	VaultID           string
	DestinationFolder string
	CreatedAt         time.Time
}

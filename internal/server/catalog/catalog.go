// Package catalog maintains the virtual folder trees of vaults and cases.
//
// Folders are reference counted: a folder record exists while it has at
// least one child. Inserting the first child of a folder bumps the count of
// every newly created ancestor; removing the last child deletes the folder
// through a conditional delete and walks upward.
package catalog

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/evidencekeeper/internal/vpath"
	"github.com/goccy/go-json"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Page is one page of catalog nodes. An empty NextPageToken means the
// listing is complete.
type Page struct {
	Items         []*models.Node
	NextPageToken string
}

type Service struct {
	store  repomanager.Store
	logger logging.Logger
}

func NewService(store repomanager.Store, logger logging.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// ListChildren returns every direct child of path.
func (s *Service) ListChildren(ctx context.Context, owner models.Owner, path string) ([]*models.Node, error) {
	if !vpath.IsNormalized(path) {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidPath, path)
	}
	r := s.store.Repos()
	if err := checkOwner(ctx, r, owner); err != nil {
		return nil, err
	}

	result := []*models.Node{}
	after := ""
	for {
		batch, err := r.Nodes().ListChildren(ctx, owner, path, after, MaxPageSize)
		if err != nil {
			return nil, err
		}
		result = append(result, batch...)
		if len(batch) < MaxPageSize {
			return result, nil
		}
		after = batch[len(batch)-1].Name
	}
}

// ListPage returns one page of the children of path.
func (s *Service) ListPage(ctx context.Context, owner models.Owner, path, pageToken string, limit int) (*Page, error) {
	if !vpath.IsNormalized(path) {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidPath, path)
	}
	after, err := decodeNameToken(pageToken)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	r := s.store.Repos()
	if err := checkOwner(ctx, r, owner); err != nil {
		return nil, err
	}

	items, err := r.Nodes().ListChildren(ctx, owner, path, after, limit+1)
	if err != nil {
		return nil, err
	}
	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextPageToken = base64.RawURLEncoding.EncodeToString([]byte(items[limit-1].Name))
	}
	if page.Items == nil {
		page.Items = []*models.Node{}
	}
	return page, nil
}

// Describe returns one node of the owner's tree.
func (s *Service) Describe(ctx context.Context, owner models.Owner, id string) (*models.Node, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", common.ErrInvalidArgument)
	}
	return s.store.Repos().Nodes().GetByID(ctx, owner, id)
}

type creationToken struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

// ListByCreation pages through the owner's leaves in creation order.
func (s *Service) ListByCreation(ctx context.Context, owner models.Owner, pageToken string, limit int) (*Page, error) {
	var cursor *nodes.CreationCursor
	if pageToken != "" {
		raw, err := base64.RawURLEncoding.DecodeString(pageToken)
		if err != nil {
			return nil, fmt.Errorf("%w: page token", common.ErrInvalidArgument)
		}
		var tok creationToken
		if err := json.Unmarshal(raw, &tok); err != nil {
			return nil, fmt.Errorf("%w: page token", common.ErrInvalidArgument)
		}
		cursor = &nodes.CreationCursor{CreatedAt: tok.CreatedAt, ID: tok.ID}
	}
	limit = clampLimit(limit)

	r := s.store.Repos()
	if err := checkOwner(ctx, r, owner); err != nil {
		return nil, err
	}
	items, err := r.Nodes().ListByCreation(ctx, owner, cursor, limit+1)
	if err != nil {
		return nil, err
	}
	page := &Page{Items: items}
	if len(items) > limit {
		last := items[limit-1]
		raw, err := json.Marshal(creationToken{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return nil, err
		}
		page.Items = items[:limit]
		page.NextPageToken = base64.RawURLEncoding.EncodeToString(raw)
	}
	if page.Items == nil {
		page.Items = []*models.Node{}
	}
	return page, nil
}

// Walk visits every node of the owner's tree breadth first, parents before
// children. Returning an error from fn stops the walk.
func (s *Service) Walk(ctx context.Context, owner models.Owner, fn func(n *models.Node) error) error {
	pending := []string{vpath.Root}
	for len(pending) > 0 {
		folder := pending[0]
		pending = pending[1:]

		children, err := s.ListChildren(ctx, owner, folder)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := fn(c); err != nil {
				return err
			}
			if !c.IsFile {
				pending = append(pending, vpath.Join(c.Path, c.Name))
			}
		}
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

func decodeNameToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) == 0 {
		return "", fmt.Errorf("%w: page token", common.ErrInvalidArgument)
	}
	return string(raw), nil
}

func checkOwner(ctx context.Context, r repomanager.Repositories, owner models.Owner) error {
	var err error
	switch owner.Kind {
	case models.OwnerVault:
		_, err = r.Vaults().Get(ctx, owner.ID)
	case models.OwnerCase:
		_, err = r.Cases().Get(ctx, owner.ID)
	default:
		return fmt.Errorf("%w: owner kind %q", common.ErrInvalidArgument, owner.Kind)
	}
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("%s: %w", owner, common.ErrorNotFound)
	}
	return err
}

package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/nodes"
	"github.com/google/uuid"
)

type nodeRepo struct{ r *Repos }

func (s *state) lookup(owner models.Owner, path, name string) (*models.Node, bool) {
	id, ok := s.byKey[nodeKey{owner, path, name}]
	if !ok {
		return nil, false
	}
	return s.nodes[id], true
}

func (s *state) find(match func(n *models.Node) bool) *models.Node {
	for _, n := range s.nodes {
		if match(n) {
			return n
		}
	}
	return nil
}

func (m *nodeRepo) one(fn func(st *state) *models.Node) (*models.Node, error) {
	var out *models.Node
	err := m.r.do(func(st *state) error {
		n := fn(st)
		if n == nil {
			return common.ErrorNotFound
		}
		out = copyNode(n)
		return nil
	})
	return out, err
}

func (m *nodeRepo) Get(_ context.Context, owner models.Owner, path, name string) (*models.Node, error) {
	return m.one(func(st *state) *models.Node {
		n, _ := st.lookup(owner, path, name)
		return n
	})
}

func (m *nodeRepo) GetByID(_ context.Context, owner models.Owner, id string) (*models.Node, error) {
	return m.one(func(st *state) *models.Node {
		n, ok := st.nodes[id]
		if !ok || n.Owner != owner {
			return nil
		}
		return n
	})
}

func (m *nodeRepo) GetByObjectKey(_ context.Context, vaultID, objectKey string) (*models.Node, error) {
	owner := models.VaultOwner(vaultID)
	return m.one(func(st *state) *models.Node {
		return st.find(func(n *models.Node) bool {
			return n.IsFile && n.Owner == owner && n.ObjectKey == objectKey
		})
	})
}

func (m *nodeRepo) FindBySource(_ context.Context, caseID, sourceFileID string) (*models.Node, error) {
	owner := models.CaseOwner(caseID)
	return m.one(func(st *state) *models.Node {
		return st.find(func(n *models.Node) bool {
			return n.Owner == owner && n.SourceFileID == sourceFileID
		})
	})
}

func (m *nodeRepo) ListChildren(_ context.Context, owner models.Owner, path, afterName string, limit int) ([]*models.Node, error) {
	var out []*models.Node
	err := m.r.do(func(st *state) error {
		for _, n := range st.nodes {
			if n.Owner != owner || n.Path != path || n.Name <= afterName {
				continue
			}
			if !n.IsFile && n.ChildCount == 0 {
				continue
			}
			out = append(out, copyNode(n))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *nodeRepo) ListByCreation(_ context.Context, owner models.Owner, after *nodes.CreationCursor, limit int) ([]*models.Node, error) {
	var out []*models.Node
	err := m.r.do(func(st *state) error {
		for _, n := range st.nodes {
			if n.Owner != owner || !n.IsFile {
				continue
			}
			if after != nil && !createdAfter(n, after) {
				continue
			}
			out = append(out, copyNode(n))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func createdAfter(n *models.Node, c *nodes.CreationCursor) bool {
	if n.CreatedAt.Equal(c.CreatedAt) {
		return n.ID > c.ID
	}
	return n.CreatedAt.After(c.CreatedAt)
}

func (m *nodeRepo) InsertFolder(_ context.Context, owner models.Owner, path, name string) (bool, error) {
	created := false
	err := m.r.do(func(st *state) error {
		if _, ok := st.lookup(owner, path, name); ok {
			return nil
		}
		now := st.stamp()
		n := &models.Node{
			ID: uuid.NewString(), Owner: owner, Path: path, Name: name,
			HoldStatus: models.HoldNone, Version: 1, CreatedAt: now, UpdatedAt: now,
		}
		st.nodes[n.ID] = n
		st.byKey[nodeKey{owner, path, name}] = n.ID
		created = true
		return nil
	})
	return created, err
}

func (m *nodeRepo) InsertLeaf(_ context.Context, n *models.Node) error {
	return m.r.do(func(st *state) error {
		if _, ok := st.lookup(n.Owner, n.Path, n.Name); ok {
			return common.ErrVersionConflict
		}
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		now := st.stamp()
		n.IsFile = true
		n.Version = 1
		n.CreatedAt, n.UpdatedAt = now, now
		st.nodes[n.ID] = copyNode(n)
		st.byKey[nodeKey{n.Owner, n.Path, n.Name}] = n.ID
		return nil
	})
}

func (m *nodeRepo) UpdateLeaf(_ context.Context, n *models.Node) error {
	return m.r.do(func(st *state) error {
		cur, ok := st.nodes[n.ID]
		if !ok || !cur.IsFile || cur.Version != n.Version {
			return common.ErrVersionConflict
		}
		cur.Size = n.Size
		cur.ContentType = n.ContentType
		cur.ContentHash = n.ContentHash
		cur.ExecutionID = n.ExecutionID
		cur.ObjectKey = n.ObjectKey
		cur.ObjectVersion = n.ObjectVersion
		cur.HoldStatus = n.HoldStatus
		cur.SourceVaultID = n.SourceVaultID
		cur.SourceFileID = n.SourceFileID
		cur.Version++
		cur.UpdatedAt = st.stamp()
		n.Version = cur.Version
		return nil
	})
}

func (m *nodeRepo) AddChildCount(_ context.Context, owner models.Owner, path, name string, delta int64) error {
	return m.r.do(func(st *state) error {
		n, ok := st.lookup(owner, path, name)
		if !ok || n.IsFile {
			return common.ErrorNotFound
		}
		n.ChildCount += delta
		n.UpdatedAt = st.stamp()
		return nil
	})
}

func (m *nodeRepo) DeleteLeaf(_ context.Context, n *models.Node) error {
	return m.r.do(func(st *state) error {
		cur, ok := st.nodes[n.ID]
		if !ok || !cur.IsFile || cur.Version != n.Version {
			return common.ErrVersionConflict
		}
		st.remove(cur)
		return nil
	})
}

func (m *nodeRepo) DeleteFolderIfEmpty(_ context.Context, owner models.Owner, path, name string) (bool, error) {
	deleted := false
	err := m.r.do(func(st *state) error {
		n, ok := st.lookup(owner, path, name)
		if !ok || n.IsFile || n.ChildCount != 0 {
			return nil
		}
		st.remove(n)
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *state) remove(n *models.Node) {
	delete(s.nodes, n.ID)
	delete(s.byKey, nodeKey{n.Owner, n.Path, n.Name})
}

func (m *nodeRepo) SetScopedCases(_ context.Context, n *models.Node) error {
	return m.r.do(func(st *state) error {
		cur, ok := st.nodes[n.ID]
		if !ok || cur.Version != n.Version {
			return common.ErrVersionConflict
		}
		cur.ScopedCases = append([]models.ScopedCase(nil), n.ScopedCases...)
		cur.Version++
		cur.UpdatedAt = st.stamp()
		n.Version = cur.Version
		return nil
	})
}

func (m *nodeRepo) SetContentHash(_ context.Context, id, hash string) (bool, error) {
	stored := false
	err := m.r.do(func(st *state) error {
		cur, ok := st.nodes[id]
		if !ok || cur.ContentHash != "" {
			return nil
		}
		cur.ContentHash = hash
		cur.Version++
		cur.UpdatedAt = st.stamp()
		stored = true
		return nil
	})
	return stored, err
}

func (m *nodeRepo) SetHoldStatus(_ context.Context, id, objectVersion string, status models.HoldStatus) error {
	return m.r.do(func(st *state) error {
		cur, ok := st.nodes[id]
		if !ok {
			return common.ErrorNotFound
		}
		if cur.ObjectVersion != objectVersion {
			return common.ErrVersionConflict
		}
		cur.HoldStatus = status
		cur.Version++
		cur.UpdatedAt = st.stamp()
		return nil
	})
}

func (m *nodeRepo) SetCaseFileHashes(_ context.Context, sourceFileID, hash string) error {
	return m.r.do(func(st *state) error {
		for _, n := range st.nodes {
			if n.Owner.Kind == models.OwnerCase && n.SourceFileID == sourceFileID && n.ContentHash != hash {
				n.ContentHash = hash
				n.Version++
				n.UpdatedAt = st.stamp()
			}
		}
		return nil
	})
}

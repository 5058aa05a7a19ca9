// Package memory is an in-process catalog backend with the same conditional
// write semantics as the PostgreSQL repositories. Transactions are
// serialized: each one works on a private copy of the state that replaces
// the live state only when the callback succeeds.
//
// The copy is a deep copy of every record, so a unit of work costs time and
// memory linear in the catalog size and writers never overlap. The backend
// is meant for tests and single-node demos with small catalogs; deployments
// use the PostgreSQL store, which only touches the rows a unit of work reads
// and writes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/cases"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/checksumjobs"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/executions"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/vaults"
)

type nodeKey struct {
	owner models.Owner
	path  string
	name  string
}

type state struct {
	vaults     map[string]models.Vault
	cases      map[string]models.Case
	executions map[string]models.Execution
	nodes      map[string]*models.Node
	byKey      map[nodeKey]string
	jobs       map[string]models.ChecksumJob
	lastStamp  time.Time
}

func newState() *state {
	return &state{
		vaults:     map[string]models.Vault{},
		cases:      map[string]models.Case{},
		executions: map[string]models.Execution{},
		nodes:      map[string]*models.Node{},
		byKey:      map[nodeKey]string{},
		jobs:       map[string]models.ChecksumJob{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.vaults {
		c.vaults[k] = v
	}
	for k, v := range s.cases {
		c.cases[k] = v
	}
	for k, v := range s.executions {
		c.executions[k] = v
	}
	for k, v := range s.nodes {
		c.nodes[k] = copyNode(v)
	}
	for k, v := range s.byKey {
		c.byKey[k] = v
	}
	for k, v := range s.jobs {
		v.State = append([]byte(nil), v.State...)
		c.jobs[k] = v
	}
	c.lastStamp = s.lastStamp
	return c
}

// stamp returns a strictly increasing timestamp so creation order is total.
func (s *state) stamp() time.Time {
	now := time.Now().UTC()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = now
	return now
}

func copyNode(n *models.Node) *models.Node {
	c := *n
	if n.ScopedCases != nil {
		c.ScopedCases = append([]models.ScopedCase(nil), n.ScopedCases...)
	}
	return &c
}

// Store owns the live state.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// Repos returns repositories that apply every call directly to the live state.
func (s *Store) Repos() *Repos {
	return &Repos{store: s}
}

// RunInTx runs fn against a private copy of the state and publishes the copy
// only if fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, r *Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.st.clone()
	if err := fn(ctx, &Repos{store: s, tx: tx}); err != nil {
		return err
	}
	s.st = tx
	return nil
}

// Repos vends the repositories of one Store, either live or bound to a
// transaction copy.
type Repos struct {
	store *Store
	tx    *state
}

func (r *Repos) do(fn func(st *state) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.st)
}

func (r *Repos) Vaults() vaults.Repository             { return &vaultRepo{r} }
func (r *Repos) Cases() cases.Repository               { return &caseRepo{r} }
func (r *Repos) Executions() executions.Repository     { return &executionRepo{r} }
func (r *Repos) Nodes() nodes.Repository               { return &nodeRepo{r} }
func (r *Repos) ChecksumJobs() checksumjobs.Repository { return &jobRepo{r} }

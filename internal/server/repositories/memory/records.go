package memory

import (
	"context"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/google/uuid"
)

type vaultRepo struct{ r *Repos }

func (v *vaultRepo) Create(_ context.Context, vault *models.Vault) (*models.Vault, error) {
	err := v.r.do(func(st *state) error {
		if vault.ID == "" {
			vault.ID = uuid.NewString()
		}
		if _, ok := st.vaults[vault.ID]; ok {
			return common.ErrNameConflict
		}
		vault.CreatedAt = st.stamp()
		st.vaults[vault.ID] = *vault
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vault, nil
}

func (v *vaultRepo) Get(_ context.Context, id string) (*models.Vault, error) {
	var out models.Vault
	err := v.r.do(func(st *state) error {
		got, ok := st.vaults[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (v *vaultRepo) AddCounters(_ context.Context, id string, objects, bytes int64) error {
	return v.r.do(func(st *state) error {
		got, ok := st.vaults[id]
		if !ok {
			return common.ErrorNotFound
		}
		got.ObjectCount += objects
		got.TotalSize += bytes
		st.vaults[id] = got
		return nil
	})
}

type caseRepo struct{ r *Repos }

func (c *caseRepo) Create(_ context.Context, cs *models.Case) (*models.Case, error) {
	err := c.r.do(func(st *state) error {
		if cs.ID == "" {
			cs.ID = uuid.NewString()
		}
		if cs.Status == "" {
			cs.Status = "open"
		}
		for _, existing := range st.cases {
			if existing.ID == cs.ID || existing.Name == cs.Name {
				return common.ErrNameConflict
			}
		}
		cs.CreatedAt = st.stamp()
		st.cases[cs.ID] = *cs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func (c *caseRepo) Get(_ context.Context, id string) (*models.Case, error) {
	var out models.Case
	err := c.r.do(func(st *state) error {
		got, ok := st.cases[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *caseRepo) AddObjectCount(_ context.Context, id string, delta int64) error {
	return c.r.do(func(st *state) error {
		got, ok := st.cases[id]
		if !ok {
			return common.ErrorNotFound
		}
		got.ObjectCount += delta
		st.cases[id] = got
		return nil
	})
}

type executionRepo struct{ r *Repos }

func (e *executionRepo) Create(_ context.Context, ex *models.Execution) error {
	return e.r.do(func(st *state) error {
		if _, ok := st.executions[ex.ID]; ok {
			return nil
		}
		if _, ok := st.vaults[ex.VaultID]; !ok {
			return common.ErrorNotFound
		}
		ex.CreatedAt = st.stamp()
		st.executions[ex.ID] = *ex
		return nil
	})
}

func (e *executionRepo) Get(_ context.Context, id string) (*models.Execution, error) {
	var out models.Execution
	err := e.r.do(func(st *state) error {
		got, ok := st.executions[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type jobRepo struct{ r *Repos }

func (j *jobRepo) Get(_ context.Context, objectKey string) (*models.ChecksumJob, error) {
	var out models.ChecksumJob
	err := j.r.do(func(st *state) error {
		got, ok := st.jobs[objectKey]
		if !ok {
			return common.ErrorNotFound
		}
		out = got
		out.State = append([]byte(nil), got.State...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (j *jobRepo) Create(_ context.Context, job *models.ChecksumJob) error {
	return j.r.do(func(st *state) error {
		if _, ok := st.jobs[job.ObjectKey]; ok {
			return common.ErrVersionConflict
		}
		now := st.stamp()
		job.Version = 1
		job.CreatedAt, job.UpdatedAt = now, now
		stored := *job
		stored.State = append([]byte(nil), job.State...)
		st.jobs[job.ObjectKey] = stored
		return nil
	})
}

func (j *jobRepo) Update(_ context.Context, job *models.ChecksumJob) error {
	return j.r.do(func(st *state) error {
		got, ok := st.jobs[job.ObjectKey]
		if !ok || got.Version != job.Version {
			return common.ErrVersionConflict
		}
		job.Version++
		job.UpdatedAt = st.stamp()
		stored := *job
		stored.State = append([]byte(nil), job.State...)
		st.jobs[job.ObjectKey] = stored
		return nil
	})
}

func (j *jobRepo) Delete(_ context.Context, objectKey string) error {
	return j.r.do(func(st *state) error {
		delete(st.jobs, objectKey)
		return nil
	})
}

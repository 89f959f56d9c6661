package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/ukaguzi/core/inspection"
)

type pendingRepository struct {
	db *pendingTable
}

var _ inspection.Repository = (*pendingRepository)(nil) // interface compliance check

func NewPendingRepository(db *DB) inspection.Repository {
	return &pendingRepository{db: db.pending}
}

func (repo *pendingRepository) SavePending(_ context.Context, p inspection.PendingSubmission) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[p.ID]; ok {
		return errors.Errorf("pending submission %s already exists", p.ID)
	}
	repo.db.table[p.ID] = p
	return nil
}

func (repo *pendingRepository) QueryPending(context.Context) ([]inspection.PendingSubmission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	out := make([]inspection.PendingSubmission, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (repo *pendingRepository) UpdatePending(_ context.Context, p inspection.PendingSubmission) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[p.ID]; !ok {
		return inspection.ErrPendingNotFound
	}
	repo.db.table[p.ID] = p
	return nil
}

func (repo *pendingRepository) DeletePending(_ context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/inspection"
)

type pendingRow struct {
	ID        string    `db:"id"`
	OrgUnit   string    `db:"org_unit"`
	Event     []byte    `db:"event"`
	Attempts  int       `db:"attempts"`
	LastError string    `db:"last_error"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type pendingRepository struct {
	exec core.DBExecutor
}

var _ inspection.Repository = (*pendingRepository)(nil) // interface compliance check

func NewPendingRepository(exec core.DBExecutor) *pendingRepository {
	return &pendingRepository{exec: exec}
}

func (repo pendingRepository) toRow(p inspection.PendingSubmission) (pendingRow, error) {
	evt, err := json.Marshal(p.Event)
	if err != nil {
		return pendingRow{}, errors.Wrap(err, "encoding event")
	}
	return pendingRow{
		ID:        p.ID,
		OrgUnit:   p.Event.OrgUnit,
		Event:     evt,
		Attempts:  p.Attempts,
		LastError: p.LastError,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}, nil
}

func (repo pendingRepository) fromRow(row pendingRow) (inspection.PendingSubmission, error) {
	p := inspection.PendingSubmission{
		ID:        row.ID,
		Attempts:  row.Attempts,
		LastError: row.LastError,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(row.Event, &p.Event); err != nil {
		return inspection.PendingSubmission{}, errors.Wrapf(err, "decoding event of %s", row.ID)
	}
	return p, nil
}

func (repo pendingRepository) SavePending(ctx context.Context, p inspection.PendingSubmission) error {
	row, err := repo.toRow(p)
	if err != nil {
		return err
	}
	const q = `INSERT INTO pending_submission (id, org_unit, event, attempts, last_error, created_at, updated_at)
		VALUES (:id, :org_unit, :event, :attempts, :last_error, :created_at, :updated_at)`
	if _, err = repo.exec.NamedExecContext(ctx, q, row); err != nil {
		return errors.Wrap(err, "inserting pending submission")
	}
	return nil
}

func (repo pendingRepository) QueryPending(ctx context.Context) ([]inspection.PendingSubmission, error) {
	var rows []pendingRow
	const q = `SELECT id, org_unit, event, attempts, last_error, created_at, updated_at
		FROM pending_submission ORDER BY created_at, id`
	if err := repo.exec.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying pending submissions")
	}

	out := make([]inspection.PendingSubmission, 0, len(rows))
	for _, row := range rows {
		p, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (repo pendingRepository) UpdatePending(ctx context.Context, p inspection.PendingSubmission) error {
	row, err := repo.toRow(p)
	if err != nil {
		return err
	}
	const q = `UPDATE pending_submission
		SET event = :event, attempts = :attempts, last_error = :last_error, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.exec.NamedExecContext(ctx, q, row)
	if err != nil {
		return errors.Wrap(err, "updating pending submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return inspection.ErrPendingNotFound
	}
	return nil
}

func (repo pendingRepository) DeletePending(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM pending_submission WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.exec.ExecContext(ctx, repo.exec.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting pending submissions")
	}
	return nil
}

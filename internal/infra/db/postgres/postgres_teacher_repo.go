package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/domain/ports/repository"
)

var _ repository.TeacherRepository = (*teacherRepo)(nil)

type teacherRepo struct {
	pool *pgxpool.Pool
}

func NewTeacherRepo(pool *pgxpool.Pool) *teacherRepo {
	return &teacherRepo{pool: pool}
}

func (r *teacherRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Teacher, error) {
	const q = `SELECT id, merchant_reference, auto_renew, is_admin, created_at FROM teachers WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *teacherRepo) FindByMerchantReference(ctx context.Context, tx repository.Tx, ref string) (*model.Teacher, error) {
	const q = `SELECT id, merchant_reference, auto_renew, is_admin, created_at FROM teachers WHERE merchant_reference=$1;`
	return r.queryOne(ctx, tx, q, ref)
}

func (r *teacherRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.Teacher, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	t := &model.Teacher{}
	if err := row.Scan(&t.ID, &t.MerchantReference, &t.AutoRenew, &t.Admin, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

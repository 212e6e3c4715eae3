package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/domain/ports/repository"
)

var _ repository.UsageLogRepository = (*usageLogRepo)(nil)

type usageLogRepo struct {
	pool *pgxpool.Pool
}

func NewUsageLogRepo(pool *pgxpool.Pool) *usageLogRepo {
	return &usageLogRepo{pool: pool}
}

const usageColumns = `
id, teacher_id, period_id, student_id, assignment_id, feature_type,
unit_count, unit_type, points_used, corrects_id, created_at`

func (r *usageLogRepo) Save(ctx context.Context, tx repository.Tx, l *model.PointUsageLog) error {
	const q = `
INSERT INTO point_usage_logs (
  id, teacher_id, period_id, student_id, assignment_id, feature_type,
  unit_count, unit_type, points_used, corrects_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	_, err := execSQL(ctx, r.pool, tx, q,
		l.ID, l.TeacherID, l.PeriodID, l.StudentID, l.AssignmentID, l.FeatureType,
		l.UnitCount, l.UnitType, l.PointsUsed, l.CorrectsID, l.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return domain.ErrAlreadyExists
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *usageLogRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PointUsageLog, error) {
	q := `SELECT ` + usageColumns + ` FROM point_usage_logs WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *usageLogRepo) FindCorrectionOf(ctx context.Context, tx repository.Tx, logID string) (*model.PointUsageLog, error) {
	q := `SELECT ` + usageColumns + ` FROM point_usage_logs WHERE corrects_id=$1 LIMIT 1;`
	return r.queryOne(ctx, tx, q, logID)
}

func (r *usageLogRepo) SumPointsForPeriod(ctx context.Context, tx repository.Tx, periodID string, until time.Time) (int64, error) {
	const q = `
SELECT COALESCE(SUM(points_used),0)
  FROM point_usage_logs
 WHERE period_id=$1 AND created_at <= $2;`
	row, err := pickRow(ctx, r.pool, tx, q, periodID, until)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *usageLogRepo) ListByTeacher(ctx context.Context, tx repository.Tx, teacherID string, limit int) ([]*model.PointUsageLog, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + usageColumns + `
  FROM point_usage_logs
 WHERE teacher_id=$1
 ORDER BY created_at DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, teacherID, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.PointUsageLog
	for rows.Next() {
		l, err := scanUsageLog(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *usageLogRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.PointUsageLog, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	l, err := scanUsageLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return l, nil
}

func scanUsageLog(row pgx.Row) (*model.PointUsageLog, error) {
	l := &model.PointUsageLog{}
	if err := row.Scan(
		&l.ID, &l.TeacherID, &l.PeriodID, &l.StudentID, &l.AssignmentID, &l.FeatureType,
		&l.UnitCount, &l.UnitType, &l.PointsUsed, &l.CorrectsID, &l.CreatedAt,
	); err != nil {
		return nil, err
	}
	return l, nil
}

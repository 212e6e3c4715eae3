package postgres

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/domain/ports/repository"
)

// Ensure periodRepo implements repository.PeriodRepository
var _ repository.PeriodRepository = (*periodRepo)(nil)

type periodRepo struct {
	pool *pgxpool.Pool
}

func NewPeriodRepo(pool *pgxpool.Pool) *periodRepo {
	return &periodRepo{pool: pool}
}

const periodColumns = `
id, teacher_id, plan_name, amount_paid, quota_total, quota_used,
start_date, end_date, payment_method, payment_status, external_transaction_id,
status, cancelled_at, admin_id, admin_reason, admin_meta, created_at, updated_at`

func (r *periodRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPeriod) error {
	const q = `
INSERT INTO subscription_periods (
  id, teacher_id, plan_name, amount_paid, quota_total, quota_used,
  start_date, end_date, payment_method, payment_status, external_transaction_id,
  status, cancelled_at, admin_id, admin_reason, admin_meta, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  plan_name=$3, amount_paid=$4, quota_total=$5, quota_used=$6,
  start_date=$7, end_date=$8, payment_method=$9, payment_status=$10,
  external_transaction_id=$11, status=$12, cancelled_at=$13,
  admin_id=$14, admin_reason=$15, admin_meta=$16, updated_at=$18;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.TeacherID, p.PlanName, p.AmountPaid, p.QuotaTotal, p.QuotaUsed,
		p.StartDate, p.EndDate, string(p.PaymentMethod), string(p.PaymentStatus), p.ExternalTransactionID,
		string(p.Status), p.CancelledAt, p.AdminID, p.AdminReason, p.AdminMeta, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch pgErr.Code {
				case "23505": // one_active_period_per_teacher
					return domain.ErrAlreadyExists
				case "23514": // quota_within_bounds / dates_ordered
					return domain.ErrInvalidArgument
				}
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *periodRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPeriod, error) {
	q := `SELECT ` + periodColumns + ` FROM subscription_periods WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *periodRepo) FindCurrentByTeacher(ctx context.Context, tx repository.Tx, teacherID string) (*model.SubscriptionPeriod, error) {
	// Active/expiring first; a cancelled period still counts while its
	// end_date is ahead.
	q := `SELECT ` + periodColumns + `
  FROM subscription_periods
 WHERE teacher_id=$1
   AND (status IN ('active','expiring') OR (status='cancelled' AND end_date > NOW()))
 ORDER BY CASE status WHEN 'active' THEN 0 WHEN 'expiring' THEN 1 ELSE 2 END, end_date DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, teacherID)
}

func (r *periodRepo) FindExpiringOn(ctx context.Context, tx repository.Tx, date time.Time, loc *time.Location) ([]*model.SubscriptionPeriod, error) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.In(loc).Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	q := `SELECT ` + periodColumns + `
  FROM subscription_periods p
 WHERE p.status IN ('active','expiring')
   AND p.cancelled_at IS NULL
   AND p.end_date >= $1 AND p.end_date < $2
   AND EXISTS (SELECT 1 FROM teachers t WHERE t.id = p.teacher_id AND t.auto_renew)
 ORDER BY p.end_date ASC;`
	return r.queryMany(ctx, tx, q, dayStart, dayEnd)
}

func (r *periodRepo) FindExpiredWithoutSuccessor(ctx context.Context, tx repository.Tx, since time.Time) ([]*model.SubscriptionPeriod, error) {
	q := `SELECT ` + periodColumns + `
  FROM subscription_periods p
 WHERE p.status = 'expired'
   AND p.cancelled_at IS NULL
   AND p.end_date >= $1 AND p.end_date <= NOW()
   AND EXISTS (SELECT 1 FROM teachers t WHERE t.id = p.teacher_id AND t.auto_renew)
   AND NOT EXISTS (
     SELECT 1 FROM subscription_periods s
      WHERE s.teacher_id = p.teacher_id AND s.start_date >= p.end_date
   )
 ORDER BY p.end_date ASC;`
	return r.queryMany(ctx, tx, q, since)
}

func (r *periodRepo) FindOverdue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.SubscriptionPeriod, error) {
	if limit <= 0 {
		limit = 200
	}
	q := `SELECT ` + periodColumns + `
  FROM subscription_periods
 WHERE status IN ('active','expiring','cancelled')
   AND end_date <= $1
 ORDER BY end_date ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, now, limit)
}

func (r *periodRepo) FindNearingEnd(ctx context.Context, tx repository.Tx, now time.Time, window time.Duration) ([]*model.SubscriptionPeriod, error) {
	q := `SELECT ` + periodColumns + `
  FROM subscription_periods p
 WHERE p.status = 'active'
   AND p.cancelled_at IS NULL
   AND p.end_date > $1 AND p.end_date <= $2
   AND EXISTS (SELECT 1 FROM teachers t WHERE t.id = p.teacher_id AND t.auto_renew)
 ORDER BY p.end_date ASC;`
	return r.queryMany(ctx, tx, q, now, now.Add(window))
}

// AcquireTeacherLock serializes mutations on a teacher's current period for
// the remainder of the transaction. Lock key is an fnv64 hash of the
// teacher id, matching the key space of pg_advisory_xact_lock.
func (r *periodRepo) AcquireTeacherLock(ctx context.Context, tx repository.Tx, teacherID string) error {
	if _, ok := tx.(pgx.Tx); !ok {
		return domain.ErrInvalidExecContext
	}
	_, err := execSQL(ctx, r.pool, tx, `SELECT pg_advisory_xact_lock($1)`, hashToInt64(teacherID))
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *periodRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PeriodStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscription_periods GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	counts := make(map[model.PeriodStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.PeriodStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

func (r *periodRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.SubscriptionPeriod, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *periodRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) ([]*model.SubscriptionPeriod, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, domain.ErrNotFound
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.SubscriptionPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanPeriod(row pgx.Row) (*model.SubscriptionPeriod, error) {
	p := &model.SubscriptionPeriod{}
	var method, payStatus, status string
	if err := row.Scan(
		&p.ID, &p.TeacherID, &p.PlanName, &p.AmountPaid, &p.QuotaTotal, &p.QuotaUsed,
		&p.StartDate, &p.EndDate, &method, &payStatus, &p.ExternalTransactionID,
		&status, &p.CancelledAt, &p.AdminID, &p.AdminReason, &p.AdminMeta, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.PaymentMethod = model.PaymentMethod(method)
	p.PaymentStatus = model.PaymentState(payStatus)
	p.Status = model.PeriodStatus(status)
	return p, nil
}

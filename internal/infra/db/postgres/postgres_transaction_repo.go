package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"speech-ai-subscription/internal/domain"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const txColumns = `
id, teacher_id, period_id, transaction_type, amount, currency, status, months,
period_start, period_end, previous_end_date, new_end_date,
payment_provider, payment_method, external_transaction_id, webhook_status, created_at`

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.TeacherTransaction) error {
	const q = `
INSERT INTO teacher_subscription_transactions (
  id, teacher_id, period_id, transaction_type, amount, currency, status, months,
  period_start, period_end, previous_end_date, new_end_date,
  payment_provider, payment_method, external_transaction_id, webhook_status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`

	var webhookStatus interface{}
	if t.WebhookStatus != "" {
		webhookStatus = string(t.WebhookStatus)
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.TeacherID, t.PeriodID, string(t.Type), t.Amount, t.Currency, string(t.Status), t.Months,
		t.PeriodStart, t.PeriodEnd, t.PreviousEndDate, t.NewEndDate,
		t.PaymentProvider, string(t.PaymentMethod), t.ExternalTransactionID, webhookStatus, t.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// uniq_tx_external_id_type: the ledger already holds this
				// provider event.
				return domain.ErrAlreadyExists
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.TeacherTransaction, error) {
	q := `SELECT ` + txColumns + ` FROM teacher_subscription_transactions WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *transactionRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string, typ model.TransactionType) (*model.TeacherTransaction, error) {
	q := `SELECT ` + txColumns + `
  FROM teacher_subscription_transactions
 WHERE external_transaction_id=$1 AND transaction_type=$2
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, externalID, string(typ))
}

func (r *transactionRepo) MarkWebhookStatus(ctx context.Context, tx repository.Tx, id string, status model.WebhookStatus) error {
	const q = `
UPDATE teacher_subscription_transactions
   SET webhook_status=$2
 WHERE id=$1 AND (webhook_status='pending' OR webhook_status=$2);`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status))
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *transactionRepo) ListByTeacher(ctx context.Context, tx repository.Tx, teacherID string, limit int) ([]*model.TeacherTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + txColumns + `
  FROM teacher_subscription_transactions
 WHERE teacher_id=$1
 ORDER BY created_at DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, teacherID, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.TeacherTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *transactionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.TeacherTransaction, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func scanTransaction(row pgx.Row) (*model.TeacherTransaction, error) {
	t := &model.TeacherTransaction{}
	var typ, status, method string
	var webhookStatus *string
	if err := row.Scan(
		&t.ID, &t.TeacherID, &t.PeriodID, &typ, &t.Amount, &t.Currency, &status, &t.Months,
		&t.PeriodStart, &t.PeriodEnd, &t.PreviousEndDate, &t.NewEndDate,
		&t.PaymentProvider, &method, &t.ExternalTransactionID, &webhookStatus, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	t.Type = model.TransactionType(typ)
	t.Status = model.TransactionStatus(status)
	t.PaymentMethod = model.PaymentMethod(method)
	if webhookStatus != nil {
		t.WebhookStatus = model.WebhookStatus(*webhookStatus)
	}
	return t, nil
}

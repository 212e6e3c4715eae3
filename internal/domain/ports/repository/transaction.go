package repository

import (
	"context"

	"speech-ai-subscription/internal/domain/model"
)

// TransactionRepository is the port for the append-only ledger.
type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.TeacherTransaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.TeacherTransaction, error)
	// FindByExternalID resolves the idempotency key
	// (external_transaction_id, transaction_type).
	FindByExternalID(ctx context.Context, tx Tx, externalID string, typ model.TransactionType) (*model.TeacherTransaction, error)
	// MarkWebhookStatus performs the only permitted mutation:
	// pending -> processed / ignored_duplicate.
	MarkWebhookStatus(ctx context.Context, tx Tx, id string, status model.WebhookStatus) error
	ListByTeacher(ctx context.Context, tx Tx, teacherID string, limit int) ([]*model.TeacherTransaction, error)
}

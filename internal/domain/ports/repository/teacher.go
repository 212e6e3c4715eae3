package repository

import (
	"context"

	"speech-ai-subscription/internal/domain/model"
)

// TeacherRepository reads the identity collaborator's teacher rows; this
// core never creates or deletes teachers.
type TeacherRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Teacher, error)
	FindByMerchantReference(ctx context.Context, tx Tx, ref string) (*model.Teacher, error)
}

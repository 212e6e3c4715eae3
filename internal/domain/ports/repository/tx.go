package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function inside one database transaction,
// handing the transaction handle to the callback as an opaque Tx.
//
// Use-case code stays free of storage types; repositories detect the handle
// implementation-side and bind their statements to it. The concrete type is
// infra-defined (pgx.Tx for Postgres). Repositories accept a nil handle for
// the non-transactional path.
//
// Mutations that touch a teacher's current period must additionally take the
// per-teacher serialization boundary (AcquireTeacherLock on the period
// repository) inside the same transaction.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

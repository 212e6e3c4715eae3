package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

// DDL for the ledger tables. Applied by cmd/e2e-setup and the integration
// test harness; production provisioning runs the same statements via ops
// tooling. Constraints enforce the invariants the store owns: one active
// period per teacher, quota bounds, date ordering, and webhook idempotency.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS teachers (
  id                  UUID PRIMARY KEY,
  merchant_reference  TEXT NOT NULL UNIQUE,
  auto_renew          BOOLEAN NOT NULL DEFAULT FALSE,
  is_admin            BOOLEAN NOT NULL DEFAULT FALSE,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS plans (
  id                    UUID PRIMARY KEY,
  name                  TEXT NOT NULL UNIQUE,
  monthly_price_cents   BIGINT NOT NULL CHECK (monthly_price_cents >= 0),
  monthly_quota_seconds BIGINT NOT NULL CHECK (monthly_quota_seconds > 0),
  duration_days         INT NOT NULL CHECK (duration_days > 0),
  active                BOOLEAN NOT NULL DEFAULT TRUE,
  created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS subscription_periods (
  id                      UUID PRIMARY KEY,
  teacher_id              UUID NOT NULL REFERENCES teachers(id),
  plan_name               TEXT NOT NULL,
  amount_paid             BIGINT NOT NULL DEFAULT 0,
  quota_total             BIGINT NOT NULL CHECK (quota_total >= 0),
  quota_used              BIGINT NOT NULL DEFAULT 0,
  start_date              TIMESTAMPTZ NOT NULL,
  end_date                TIMESTAMPTZ NOT NULL,
  payment_method          TEXT NOT NULL CHECK (payment_method IN ('trial','manual','auto_renew')),
  payment_status          TEXT NOT NULL CHECK (payment_status IN ('paid','pending','failed')),
  external_transaction_id TEXT,
  status                  TEXT NOT NULL CHECK (status IN ('active','expiring','expired','cancelled')),
  cancelled_at            TIMESTAMPTZ,
  admin_id                TEXT,
  admin_reason            TEXT,
  admin_meta              JSONB,
  created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT quota_within_bounds CHECK (quota_used >= 0 AND quota_used <= quota_total),
  CONSTRAINT dates_ordered CHECK (start_date <= end_date)
);

-- At most one live period per teacher at any instant.
CREATE UNIQUE INDEX IF NOT EXISTS one_active_period_per_teacher
  ON subscription_periods (teacher_id)
  WHERE status IN ('active','expiring');

CREATE INDEX IF NOT EXISTS idx_periods_teacher_status ON subscription_periods (teacher_id, status);
CREATE INDEX IF NOT EXISTS idx_periods_end_date ON subscription_periods (end_date);

CREATE TABLE IF NOT EXISTS teacher_subscription_transactions (
  id                      UUID PRIMARY KEY,
  teacher_id              UUID NOT NULL REFERENCES teachers(id),
  period_id               UUID NOT NULL REFERENCES subscription_periods(id),
  transaction_type        TEXT NOT NULL CHECK (transaction_type IN ('trial','recharge','expired','refund')),
  amount                  BIGINT NOT NULL,
  currency                TEXT NOT NULL DEFAULT '',
  status                  TEXT NOT NULL CHECK (status IN ('success','failed','pending')),
  months                  INT,
  period_start            TIMESTAMPTZ NOT NULL,
  period_end              TIMESTAMPTZ NOT NULL,
  previous_end_date       TIMESTAMPTZ,
  new_end_date            TIMESTAMPTZ,
  payment_provider        TEXT NOT NULL DEFAULT '',
  payment_method          TEXT NOT NULL DEFAULT '',
  external_transaction_id TEXT,
  webhook_status          TEXT CHECK (webhook_status IN ('pending','processed','ignored_duplicate')),
  created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Webhook idempotency key: re-delivery must resolve to the recorded row.
CREATE UNIQUE INDEX IF NOT EXISTS uniq_tx_external_id_type
  ON teacher_subscription_transactions (external_transaction_id, transaction_type)
  WHERE external_transaction_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_tx_teacher_created ON teacher_subscription_transactions (teacher_id, created_at);

CREATE TABLE IF NOT EXISTS point_usage_logs (
  id            TEXT PRIMARY KEY,
  teacher_id    UUID NOT NULL REFERENCES teachers(id),
  period_id     UUID NOT NULL REFERENCES subscription_periods(id),
  student_id    TEXT,
  assignment_id TEXT,
  feature_type  TEXT NOT NULL,
  unit_count    BIGINT NOT NULL,
  unit_type     TEXT NOT NULL,
  points_used   BIGINT NOT NULL,
  corrects_id   TEXT REFERENCES point_usage_logs(id),
  created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- At most one corrective row per original deduction.
CREATE UNIQUE INDEX IF NOT EXISTS uniq_usage_correction
  ON point_usage_logs (corrects_id)
  WHERE corrects_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_usage_teacher_created ON point_usage_logs (teacher_id, created_at);
`

// ApplySchema creates the ledger tables and indexes if missing.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

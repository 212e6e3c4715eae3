package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Quota guard
	ErrNoActiveSubscription = errors.New("no active subscription period")
	ErrInsufficientQuota    = errors.New("insufficient quota")

	// Webhook reconciliation
	ErrUnknownTransaction = errors.New("refund references an unknown transaction")
	ErrMalformedWebhook   = errors.New("malformed webhook payload")

	// Period lifecycle
	ErrPeriodNotAdjustable = errors.New("period is not in an adjustable state")
	ErrAlreadyCancelled    = errors.New("period already cancelled")

	// Renewal
	ErrRenewalChargeFailed = errors.New("renewal charge failed")
)

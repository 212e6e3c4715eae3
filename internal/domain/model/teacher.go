package model

import "time"

// Teacher is the external identity referenced by the ledger. Lifecycle is
// owned by the identity collaborator; this core only reads the flags that
// gate renewal and admin operations.
type Teacher struct {
	ID                string // UUID
	MerchantReference string // provider-side reference used on webhooks
	AutoRenew         bool
	Admin             bool
	CreatedAt         time.Time
}

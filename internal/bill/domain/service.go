package domain

import (
	"context"
)

// BillingBackend fetches raw bills from the upstream billing system.
type BillingBackend interface {
	FetchBills(ctx context.Context, connectionID string) ([]RawBill, error)
}

type SyncResult struct {
	Synced  int
	Skipped int
}

type Service interface {
	// Sync refreshes the local mirror for one connection from upstream.
	// Malformed records are logged and skipped, never fatal to the batch.
	Sync(ctx context.Context, connectionID string) (SyncResult, error)
	ListByConnection(ctx context.Context, connectionID string) ([]Bill, error)
	GetByID(ctx context.Context, billID string) (Bill, error)
	// ApplyPayment credits a settled amount against a bill. Only a resolved
	// payment may call this; optimistic application is forbidden.
	ApplyPayment(ctx context.Context, billID string, amount int64) (Bill, error)
}

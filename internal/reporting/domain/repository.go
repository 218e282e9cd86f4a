package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository applies transformed rows. Every method takes the handle to write
// through, normally the transaction opened for the entity type, and splits
// rows into statements of at most statementSize. The int64 result is the
// number of rows the store reported as written.
type Repository interface {
	UpsertAutoRenews(ctx context.Context, db *gorm.DB, rows []AutoRenewRow, statementSize int) (int64, error)
	UpsertOrders(ctx context.Context, db *gorm.DB, rows []OrderRow, statementSize int) (int64, error)
	UpsertRegistrations(ctx context.Context, db *gorm.DB, rows []RegistrationRow, statementSize int) (int64, error)
	UpsertCustomers(ctx context.Context, db *gorm.DB, rows []CustomerRow, statementSize int) (int64, error)
	ReplaceRevenueTotals(ctx context.Context, db *gorm.DB, totals []RevenueCategoryTotal, statementSize int) (int64, error)
	ListRevenueTotals(ctx context.Context, db *gorm.DB, month string) ([]RevenueCategoryTotal, error)
}

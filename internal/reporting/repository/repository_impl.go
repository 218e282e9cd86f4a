package repository

import (
	"context"
	"sort"

	"github.com/smallbiznis/studiosync/internal/reporting/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultStatementSize = 100

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// UpsertAutoRenews updates rows identified by source pass id and only inserts
// rows identified by natural key. A manual upload without ids is never
// trusted to overwrite what an earlier import stored.
func (r *repo) UpsertAutoRenews(ctx context.Context, db *gorm.DB, rows []domain.AutoRenewRow, statementSize int) (int64, error) {
	var bySource, byNatural []domain.AutoRenewRow
	for _, row := range dedupeBy(rows, func(r domain.AutoRenewRow) string { return r.DedupKey }) {
		if row.Identity.Kind == domain.IdentityByNaturalKey {
			byNatural = append(byNatural, row)
			continue
		}
		bySource = append(bySource, row)
	}

	updated, err := insertChunks(ctx, db, bySource, statementSize, clause.OnConflict{
		Columns: []clause.Column{{Name: "dedup_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_name",
			"plan_state",
			"plan_price",
			"customer_name",
			"customer_email",
			"pass_created_at",
			"canceled_at",
			"source_pass_id",
		}),
	})
	if err != nil {
		return updated, err
	}
	inserted, err := insertChunks(ctx, db, byNatural, statementSize, clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	})
	return updated + inserted, err
}

func (r *repo) UpsertOrders(ctx context.Context, db *gorm.DB, rows []domain.OrderRow, statementSize int) (int64, error) {
	rows = dedupeBy(rows, func(r domain.OrderRow) string { return r.DedupKey })
	return insertChunks(ctx, db, rows, statementSize, clause.OnConflict{
		Columns: []clause.Column{{Name: "dedup_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_order_id",
			"ordered_at",
			"customer_name",
			"customer_email",
			"type",
			"payment",
			"total",
			"state",
		}),
	})
}

// UpsertRegistrations lets the latest import win on class context and state.
// Attendee identity and revenue keep the values first stored.
func (r *repo) UpsertRegistrations(ctx context.Context, db *gorm.DB, rows []domain.RegistrationRow, statementSize int) (int64, error) {
	rows = dedupeBy(rows, func(r domain.RegistrationRow) string { return r.DedupKey })
	return insertChunks(ctx, db, rows, statementSize, clause.OnConflict{
		Columns: []clause.Column{{Name: "dedup_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"event_name",
			"performance_starts_at",
			"location_name",
			"teacher_name",
			"state",
			"pass_name",
			"is_subscription",
		}),
	})
}

// UpsertCustomers never blanks a stored name or role, and nil aggregates keep
// whatever downstream aggregation stored.
func (r *repo) UpsertCustomers(ctx context.Context, db *gorm.DB, rows []domain.CustomerRow, statementSize int) (int64, error) {
	rows = dedupeBy(rows, func(r domain.CustomerRow) string { return r.Email })
	return insertChunks(ctx, db, rows, statementSize, clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.Set{
			keepUnlessBlank("name"),
			keepUnlessBlank("role"),
			coalesce("joined_at"),
			coalesce("order_count"),
			coalesce("visit_count"),
			coalesce("total_spend"),
		},
	})
}

// ReplaceRevenueTotals deletes every month present in totals and inserts the
// recomputed rows. Callers must pass complete months; other months are untouched.
func (r *repo) ReplaceRevenueTotals(ctx context.Context, db *gorm.DB, totals []domain.RevenueCategoryTotal, statementSize int) (int64, error) {
	if len(totals) == 0 {
		return 0, nil
	}
	totals = dedupeBy(totals, func(t domain.RevenueCategoryTotal) string { return t.Month + "\x1f" + t.Category })

	seen := make(map[string]struct{})
	months := make([]string, 0)
	for i := range totals {
		totals[i].ID = 0
		totals[i].NetRevenue = totals[i].Net()
		if _, ok := seen[totals[i].Month]; !ok {
			seen[totals[i].Month] = struct{}{}
			months = append(months, totals[i].Month)
		}
	}
	sort.Strings(months)

	for _, batch := range chunks(months, chunkSize(statementSize)) {
		err := db.WithContext(ctx).
			Where("month IN ?", batch).
			Delete(&domain.RevenueCategoryTotal{}).Error
		if err != nil {
			return 0, err
		}
	}
	return insertChunks(ctx, db, totals, statementSize)
}

func (r *repo) ListRevenueTotals(ctx context.Context, db *gorm.DB, month string) ([]domain.RevenueCategoryTotal, error) {
	var items []domain.RevenueCategoryTotal
	stmt := db.WithContext(ctx).Model(&domain.RevenueCategoryTotal{})
	if month != "" {
		stmt = stmt.Where("month = ?", month)
	}
	err := stmt.Order("month asc, revenue desc, category asc").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func insertChunks[T any](ctx context.Context, db *gorm.DB, rows []T, statementSize int, conflict ...clause.Expression) (int64, error) {
	var written int64
	for _, chunk := range chunks(rows, chunkSize(statementSize)) {
		res := db.WithContext(ctx).Clauses(conflict...).Create(&chunk)
		if res.Error != nil {
			return written, res.Error
		}
		written += res.RowsAffected
	}
	return written, nil
}

func keepUnlessBlank(column string) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value:  gorm.Expr("CASE WHEN excluded." + column + " <> '' THEN excluded." + column + " ELSE customers." + column + " END"),
	}
}

func coalesce(column string) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value:  gorm.Expr("COALESCE(excluded." + column + ", customers." + column + ")"),
	}
}

func chunkSize(statementSize int) int {
	if statementSize <= 0 {
		return defaultStatementSize
	}
	return statementSize
}

func chunks[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}

// dedupeBy keeps the last row per key at the position of its first
// occurrence. A single INSERT ... ON CONFLICT DO UPDATE cannot touch the same
// row twice.
func dedupeBy[T any](rows []T, key func(T) string) []T {
	if len(rows) < 2 {
		return rows
	}
	pos := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		k := key(row)
		if i, ok := pos[k]; ok {
			out[i] = row
			continue
		}
		pos[k] = len(out)
		out = append(out, row)
	}
	return out
}

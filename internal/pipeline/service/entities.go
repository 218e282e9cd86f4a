package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/studiosync/internal/config"
	exportdomain "github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/lookup"
	"github.com/smallbiznis/studiosync/internal/pipeline/domain"
	"github.com/smallbiznis/studiosync/internal/revenue"
	"github.com/smallbiznis/studiosync/internal/transform"
	watermarkdomain "github.com/smallbiznis/studiosync/internal/watermark/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) customers(ctx context.Context, idx *lookup.Indexes, cfg config.ImportConfig) entityResult {
	rows, stats := transform.Customers(idx)
	domain.ProgressFromContext(ctx)(domain.EntityCustomers, stats.Processed)

	var highWater time.Time
	idx.Memberships().Each(func(m exportdomain.Membership) bool {
		highWater = later(highWater, m.CreatedAt)
		return true
	})

	result := entityResult{summary: domain.EntitySummary{
		Processed: stats.Processed,
		Emitted:   stats.Emitted,
		Batches:   1,
		Skipped: skipped(map[string]int{
			"no_email":        stats.SkippedNoEmail,
			"duplicate_email": stats.Duplicates,
		}),
	}}
	result.err = s.store.InTx(ctx, func(tx *gorm.DB) error {
		n, err := s.store.Repo.UpsertCustomers(ctx, tx, rows, cfg.StatementSize)
		result.summary.Persisted = n
		return err
	})
	result.marks = []mark{{reportType: watermarkdomain.ReportMemberships, highWater: highWater, count: int64(stats.Processed)}}
	return result
}

func (s *Service) autoRenews(ctx context.Context, idx *lookup.Indexes, cfg config.ImportConfig) entityResult {
	rows, stats := transform.AutoRenews(idx, cfg.Vocabulary())
	domain.ProgressFromContext(ctx)(domain.EntityAutoRenews, stats.Processed)

	var highWater time.Time
	idx.Passes().Each(func(p exportdomain.Pass) bool {
		highWater = later(highWater, p.CreatedAt)
		return true
	})

	result := entityResult{summary: domain.EntitySummary{
		Processed: stats.Processed,
		Emitted:   stats.Emitted,
		Batches:   1,
		Skipped: skipped(map[string]int{
			"not_auto_renew": stats.SkippedNotAutoRenew,
			"expired":        stats.SkippedExpired,
			"no_member":      stats.SkippedNoMember,
		}),
	}}
	result.err = s.store.InTx(ctx, func(tx *gorm.DB) error {
		n, err := s.store.Repo.UpsertAutoRenews(ctx, tx, rows, cfg.StatementSize)
		result.summary.Persisted = n
		return err
	})
	result.marks = []mark{{reportType: watermarkdomain.ReportPasses, highWater: highWater, count: int64(stats.Processed)}}
	return result
}

// orders streams the order table through the transformer inside a single
// transaction. Each batch is persisted before the next one is read.
func (s *Service) orders(ctx context.Context, idx *lookup.Indexes, cfg config.ImportConfig) entityResult {
	var (
		result    entityResult
		highWater time.Time
		progress  = domain.ProgressFromContext(ctx)
	)
	result.err = s.store.InTx(ctx, func(tx *gorm.DB) error {
		return s.source.StreamOrders(ctx, cfg.BatchSize, func(batch []exportdomain.Order) error {
			rows := transform.Orders(batch, idx)
			n, err := s.store.Repo.UpsertOrders(ctx, tx, rows, cfg.StatementSize)
			if err != nil {
				return fmt.Errorf("batch %d: %w", result.summary.Batches+1, err)
			}
			for _, order := range batch {
				highWater = later(highWater, order.CreatedAt)
			}
			result.summary.Batches++
			result.summary.Processed += len(batch)
			result.summary.Emitted += len(rows)
			result.summary.Persisted += n
			progress(domain.EntityOrders, len(batch))
			return nil
		})
	})
	result.marks = []mark{{reportType: watermarkdomain.ReportOrders, highWater: highWater, count: int64(result.summary.Processed)}}
	return result
}

func (s *Service) registrations(ctx context.Context, idx *lookup.Indexes, cfg config.ImportConfig) entityResult {
	var (
		result    entityResult
		highWater time.Time
		progress  = domain.ProgressFromContext(ctx)
	)
	result.err = s.store.InTx(ctx, func(tx *gorm.DB) error {
		return s.source.StreamRegistrations(ctx, cfg.BatchSize, func(batch []exportdomain.Registration) error {
			rows := transform.Registrations(batch, idx)
			n, err := s.store.Repo.UpsertRegistrations(ctx, tx, rows, cfg.StatementSize)
			if err != nil {
				return fmt.Errorf("batch %d: %w", result.summary.Batches+1, err)
			}
			for _, registration := range batch {
				highWater = later(highWater, registration.AttendedAt)
			}
			result.summary.Batches++
			result.summary.Processed += len(batch)
			result.summary.Emitted += len(rows)
			result.summary.Persisted += n
			progress(domain.EntityRegistrations, len(batch))
			return nil
		})
	})
	result.marks = []mark{{reportType: watermarkdomain.ReportRegistrations, highWater: highWater, count: int64(result.summary.Processed)}}
	return result
}

// revenue attributes every order then every refund, and replaces the monthly
// totals of every touched month. It reads the order table on
// its own so that it stays independent of the orders entity type.
func (s *Service) revenue(ctx context.Context, idx *lookup.Indexes, cfg config.ImportConfig, out *domain.RevenueSummary, log *zap.Logger) entityResult {
	var result entityResult

	attributor, err := revenue.NewAttributor(idx, revenue.Options{SampleSize: cfg.UncategorizedSampleSize}, s.log)
	if errors.Is(err, revenue.ErrNotComputed) {
		log.Warn("pipeline.revenue.not_computed", zap.Int("revenue_categories", idx.Sizes().RevenueCategories))
		result.summary.Status = domain.EntityNotComputed
		return result
	}
	if err != nil {
		result.err = err
		return result
	}

	var (
		orderHighWater  time.Time
		refundHighWater time.Time
		refunds         int
		progress        = domain.ProgressFromContext(ctx)
	)
	err = s.source.StreamOrders(ctx, cfg.BatchSize, func(batch []exportdomain.Order) error {
		attributor.AddOrders(batch)
		for _, order := range batch {
			orderHighWater = later(orderHighWater, order.CompletedAt, order.CreatedAt)
		}
		result.summary.Batches++
		result.summary.Processed += len(batch)
		progress(domain.EntityRevenue, len(batch))
		return nil
	})
	if err != nil {
		result.err = fmt.Errorf("orders: %w", err)
		return result
	}
	err = s.source.StreamRefunds(ctx, cfg.BatchSize, func(batch []exportdomain.Refund) error {
		attributor.AddRefunds(batch)
		for _, refund := range batch {
			refundHighWater = later(refundHighWater, refund.CreatedAt)
		}
		refunds += len(batch)
		result.summary.Batches++
		result.summary.Processed += len(batch)
		progress(domain.EntityRevenue, len(batch))
		return nil
	})
	if err != nil {
		result.err = fmt.Errorf("refunds: %w", err)
		return result
	}
	attributor.LogSummary()

	totals := attributor.Totals()
	stats := attributor.Stats()
	result.summary.Emitted = len(totals)
	result.summary.Skipped = skipped(map[string]int{
		"state":          stats.SkippedState,
		"no_date":        stats.SkippedNoDate,
		"refund_skipped": stats.RefundsSkipped,
	})
	result.err = s.store.InTx(ctx, func(tx *gorm.DB) error {
		n, err := s.store.Repo.ReplaceRevenueTotals(ctx, tx, totals, cfg.StatementSize)
		result.summary.Persisted = n
		return err
	})
	if result.err != nil {
		return result
	}

	*out = domain.RevenueSummary{
		Computed: true,
		Stats:    stats,
		Months:   attributor.Months(),
		Buckets:  len(totals),
	}
	s.metrics.AddUncategorized(stats.Uncategorized)
	if months := out.Months; len(months) > 0 {
		latest := months[len(months)-1]
		for _, total := range totals {
			if total.Month == latest {
				s.metrics.SetRevenueNet(total.Category, total.NetRevenue.InexactFloat64())
			}
		}
	}

	result.marks = []mark{
		{reportType: watermarkdomain.ReportRevenue, highWater: orderHighWater, count: int64(len(totals))},
		{reportType: watermarkdomain.ReportRefunds, highWater: refundHighWater, count: int64(refunds)},
	}
	return result
}

// later returns the latest of current and the first parseable raw timestamp.
func later(current time.Time, raw ...string) time.Time {
	at, ok := exportdomain.FirstTimestamp(raw...)
	if ok && at.After(current) {
		return at
	}
	return current
}

func skipped(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for reason, n := range counts {
		if n > 0 {
			out[reason] = n
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

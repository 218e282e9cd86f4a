package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studiosync/internal/clock"
	"github.com/smallbiznis/studiosync/internal/config"
	exportdomain "github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/migration"
	"github.com/smallbiznis/studiosync/internal/observability/metrics"
	"github.com/smallbiznis/studiosync/internal/pipeline/domain"
	"github.com/smallbiznis/studiosync/internal/pipeline/repository"
	"github.com/smallbiznis/studiosync/internal/reporting"
	reportingdomain "github.com/smallbiznis/studiosync/internal/reporting/domain"
	reportingrepo "github.com/smallbiznis/studiosync/internal/reporting/repository"
	watermarkdomain "github.com/smallbiznis/studiosync/internal/watermark/domain"
	watermarkrepo "github.com/smallbiznis/studiosync/internal/watermark/repository"
	watermarkservice "github.com/smallbiznis/studiosync/internal/watermark/service"
	"github.com/smallbiznis/studiosync/pkg/db"
	"github.com/smallbiznis/studiosync/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixtureSource() *exportdomain.SliceSource {
	return &exportdomain.SliceSource{
		Tables: exportdomain.ReferenceTables{
			Memberships: []exportdomain.Membership{
				{ID: "m1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.test", Role: "student", CreatedAt: "2025-06-01"},
				{ID: "m2", FirstName: "Grace", LastName: "Hopper", Email: "grace@example.test", Role: "student", CreatedAt: "2026-01-20"},
				{ID: "t1", FirstName: "Tess", LastName: "Teacher", Role: "teacher"},
			},
			Passes: []exportdomain.Pass{
				{ID: "p1", MembershipID: "m1", Name: "Unlimited", State: "Active", Price: dec("149.00"), AutoRenewUnlimited: true, PassTypeID: "pt1", CreatedAt: "2026-01-05"},
				{ID: "p2", MembershipID: "m2", Name: "Ten Pack", State: "Active", PassTypeID: "pt2", CreatedAt: "2026-02-01"},
			},
			Performances:      []exportdomain.Performance{{ID: "perf1", EventID: "e1", LocationID: "l1", TeacherMembershipID: "t1", StartsAt: "2026-02-10T18:00:00Z"}},
			Events:            []exportdomain.Event{{ID: "e1", Name: "Vinyasa", RevenueCategoryID: "c-classes"}},
			Locations:         []exportdomain.Location{{ID: "l1", Name: "Main Room"}},
			PassTypes:         []exportdomain.PassType{{ID: "pt1", RevenueCategoryID: "c-memberships"}},
			RevenueCategories: []exportdomain.RevenueCategory{{ID: "c-classes", Name: "Classes"}, {ID: "c-memberships", Name: "Memberships"}},
		},
		Orders: []exportdomain.Order{
			{ID: "o1", MembershipID: "m1", EventID: "e1", Total: dec("100.00"), FeePaymentTotal: dec("3.20"), State: "completed", CreatedAt: "2026-02-10", CompletedAt: "2026-02-10"},
			{ID: "o2", MembershipID: "m1", SubscriptionPassID: "p1", Total: dec("149.00"), State: "completed", CreatedAt: "2026-02-11", CompletedAt: "2026-02-11"},
			{ID: "o3", MembershipID: "ghost", Total: dec("20.00"), State: "completed", CreatedAt: "2026-03-01"},
			{ID: "o4", MembershipID: "m2", EventID: "e1", Total: dec("15.00"), State: "pending", CreatedAt: "2026-03-02"},
		},
		Registrations: []exportdomain.Registration{
			{ID: "r1", PassID: "p1", PerformanceID: "perf1", AttendedAt: "2026-02-10T18:05:00Z", State: "attended"},
			{ID: "r2", PassID: "p2", PerformanceID: "perf1", AttendedAt: "2026-02-10T18:07:00Z", State: "attended", Revenue: dec("12.50")},
		},
		Refunds: []exportdomain.Refund{
			{ID: "rf1", OrderID: "o1", AmountRefunded: dec("-25.00"), CreatedAt: "2026-02-12"},
		},
	}
}

type harness struct {
	conn       *gorm.DB
	svc        *Service
	watermarks *watermarkservice.Service
	clock      *clock.FakeClock
}

func newHarness(t *testing.T, source exportdomain.Source, cfg config.ImportConfig) *harness {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.Apply(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	c := clock.NewFakeClock(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC))
	holder := config.NewStaticImportConfigHolder(cfg)
	watermarks := watermarkservice.NewService(conn, watermarkrepo.Provide(), c, func() time.Time { return holder.Get().Floor() }, zap.NewNop())

	svc := NewService(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		Clock:      c,
		Node:       node,
		Source:     source,
		Store:      reporting.NewStore(conn, reportingrepo.Provide()),
		Repo:       repository.Provide(),
		Watermarks: watermarks,
		Import:     holder,
		Metrics:    metrics.NewImportMetrics(prometheus.NewRegistry(), metrics.Config{}),
	})
	return &harness{conn: conn, svc: svc, watermarks: watermarks, clock: c}
}

type snapshot struct {
	AutoRenews    []reportingdomain.AutoRenewRow
	Orders        []reportingdomain.OrderRow
	Registrations []reportingdomain.RegistrationRow
	Customers     []reportingdomain.CustomerRow
	Totals        []reportingdomain.RevenueCategoryTotal
}

func takeSnapshot(t *testing.T, conn *gorm.DB) snapshot {
	t.Helper()
	var snap snapshot
	require.NoError(t, conn.Order("dedup_key").Find(&snap.AutoRenews).Error)
	require.NoError(t, conn.Order("dedup_key").Find(&snap.Orders).Error)
	require.NoError(t, conn.Order("dedup_key").Find(&snap.Registrations).Error)
	require.NoError(t, conn.Order("email").Find(&snap.Customers).Error)
	require.NoError(t, conn.Order("month, category").Find(&snap.Totals).Error)
	// Replaced totals get fresh surrogate ids; only the values matter.
	for i := range snap.Totals {
		snap.Totals[i].ID = 0
	}
	return snap
}

func TestRunPersistsEveryEntityType(t *testing.T) {
	h := newHarness(t, fixtureSource(), config.DefaultImportConfig())
	ctx := context.Background()

	summary, err := h.svc.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, summary.Status)
	assert.Equal(t, 3, summary.Indexes.Memberships)
	assert.Len(t, summary.Windows, len(watermarkdomain.ReportTypes()))

	snap := takeSnapshot(t, h.conn)
	assert.Len(t, snap.Customers, 2)
	assert.Len(t, snap.AutoRenews, 1)
	assert.Len(t, snap.Orders, 4)
	assert.Len(t, snap.Registrations, 2)
	require.Len(t, snap.Totals, 3)

	orders, ok := summary.Entity(domain.EntityOrders)
	require.True(t, ok)
	assert.Equal(t, 4, orders.Processed)
	assert.Equal(t, int64(4), orders.Persisted)

	totals, err := reportingrepo.Provide().ListRevenueTotals(ctx, h.conn, "2026-02")
	require.NoError(t, err)
	byCategory := map[string]reportingdomain.RevenueCategoryTotal{}
	for _, total := range totals {
		byCategory[total.Category] = total
	}
	assert.Equal(t, "71.80", byCategory["Classes"].NetRevenue.StringFixed(2))
	assert.Equal(t, "149.00", byCategory["Memberships"].NetRevenue.StringFixed(2))

	require.NotNil(t, summary.Revenue)
	assert.True(t, summary.Revenue.Computed)
	assert.Equal(t, 1, summary.Revenue.Stats.Uncategorized)
	assert.Equal(t, []string{"o3"}, summary.Revenue.Stats.UncategorizedSample)

	wm, err := h.watermarks.Get(ctx, watermarkdomain.ReportOrders)
	require.NoError(t, err)
	require.NotNil(t, wm)
	require.NotNil(t, wm.HighWaterDate)
	assert.Equal(t, "2026-03-02", wm.HighWaterDate.Format("2006-01-02"))

	refunds, err := h.watermarks.Get(ctx, watermarkdomain.ReportRefunds)
	require.NoError(t, err)
	require.NotNil(t, refunds)
	assert.Equal(t, "2026-02-12", refunds.HighWaterDate.Format("2006-01-02"))
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t, fixtureSource(), config.DefaultImportConfig())
	ctx := context.Background()

	_, err := h.svc.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	first := takeSnapshot(t, h.conn)

	h.clock.Advance(6 * time.Hour)
	_, err = h.svc.Run(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	second := takeSnapshot(t, h.conn)

	assert.Equal(t, first, second)
}

func TestRunRecomputesReclassifiedMonth(t *testing.T) {
	source := fixtureSource()
	source.Tables.Events = append(source.Tables.Events, exportdomain.Event{ID: "e2", Name: "Open Gym"})
	source.Orders[2].EventID = "e2"
	h := newHarness(t, source, config.DefaultImportConfig())
	ctx := context.Background()

	_, err := h.svc.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)

	source.Tables.Events[1].RevenueCategoryID = "c-classes"
	h.clock.Advance(6 * time.Hour)
	_, err = h.svc.Run(ctx, domain.TriggerScheduled)
	require.NoError(t, err)

	march, err := reportingrepo.Provide().ListRevenueTotals(ctx, h.conn, "2026-03")
	require.NoError(t, err)
	require.Len(t, march, 1)
	assert.Equal(t, "Classes", march[0].Category)
	assert.Equal(t, "20.00", march[0].Revenue.StringFixed(2))
}

func TestRunClampsFutureHighWater(t *testing.T) {
	source := fixtureSource()
	source.Orders = append(source.Orders, exportdomain.Order{ID: "o5", MembershipID: "m1", Total: dec("5.00"), State: "completed", CreatedAt: "2026-09-01"})
	h := newHarness(t, source, config.DefaultImportConfig())
	ctx := context.Background()

	summary, err := h.svc.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)

	orders, ok := summary.Entity(domain.EntityOrders)
	require.True(t, ok)
	require.NotNil(t, orders.HighWater)
	assert.Equal(t, "2026-03-04", orders.HighWater.Format("2006-01-02"))

	registrations, ok := summary.Entity(domain.EntityRegistrations)
	require.True(t, ok)
	require.NotNil(t, registrations.HighWater)
	assert.Equal(t, "2026-02-10", registrations.HighWater.Format("2006-01-02"))

	wm, err := h.watermarks.Get(ctx, watermarkdomain.ReportOrders)
	require.NoError(t, err)
	require.NotNil(t, wm.HighWaterDate)
	assert.Equal(t, "2026-03-04", wm.HighWaterDate.Format("2006-01-02"))

	window, err := h.watermarks.NextWindow(ctx, watermarkdomain.ReportOrders)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", window.Start.Format("2006-01-02"))
}

func TestRunInParallelLanes(t *testing.T) {
	cfg := config.DefaultImportConfig()
	cfg.Lanes = 4
	cfg.BatchSize = 1
	h := newHarness(t, fixtureSource(), cfg)

	var (
		mu   sync.Mutex
		seen = map[string]int{}
	)
	ctx := domain.WithProgress(context.Background(), func(entity string, rows int) {
		mu.Lock()
		defer mu.Unlock()
		seen[entity] += rows
	})

	summary, err := h.svc.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, summary.Status)

	orders, _ := summary.Entity(domain.EntityOrders)
	assert.Equal(t, 4, orders.Batches)
	assert.Equal(t, 4, seen[domain.EntityOrders])
	assert.Equal(t, 5, seen[domain.EntityRevenue], "orders plus refunds")
}

type failingRegistrations struct {
	*exportdomain.SliceSource
}

func (failingRegistrations) StreamRegistrations(ctx context.Context, batchSize int, fn func([]exportdomain.Registration) error) error {
	return errors.New("registrations.csv: unexpected EOF")
}

func TestFailedEntityRollsBackAlone(t *testing.T) {
	h := newHarness(t, failingRegistrations{fixtureSource()}, config.DefaultImportConfig())
	ctx := context.Background()

	summary, err := h.svc.Run(ctx, domain.TriggerManual)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRunPartial))
	assert.Equal(t, domain.StatusPartial, summary.Status)

	registrations, _ := summary.Entity(domain.EntityRegistrations)
	assert.True(t, registrations.Failed())
	assert.NotEmpty(t, registrations.Error)

	var count int64
	require.NoError(t, h.conn.Model(&reportingdomain.OrderRow{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)

	wm, err := h.watermarks.Get(ctx, watermarkdomain.ReportRegistrations)
	require.NoError(t, err)
	assert.Nil(t, wm, "a failed entity type must not advance its watermark")

	var run domain.ImportRun
	require.NoError(t, h.conn.First(&run).Error)
	assert.Equal(t, domain.StatusPartial, run.Status)
	assert.NotEmpty(t, run.Summary)
}

func TestRevenueNotComputedWithoutCategories(t *testing.T) {
	source := fixtureSource()
	source.Tables.RevenueCategories = nil
	h := newHarness(t, source, config.DefaultImportConfig())
	ctx := context.Background()

	summary, err := h.svc.Run(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, summary.Status)

	rev, _ := summary.Entity(domain.EntityRevenue)
	assert.Equal(t, domain.EntityNotComputed, rev.Status)
	require.NotNil(t, summary.Revenue)
	assert.False(t, summary.Revenue.Computed)

	wm, err := h.watermarks.Get(ctx, watermarkdomain.ReportRevenue)
	require.NoError(t, err)
	assert.Nil(t, wm)
}

func TestDisabledEntitiesAreSkipped(t *testing.T) {
	cfg := config.DefaultImportConfig()
	cfg.Entities = []string{domain.EntityOrders}
	h := newHarness(t, fixtureSource(), cfg)

	summary, err := h.svc.Run(context.Background(), domain.TriggerManual)
	require.NoError(t, err)

	customers, _ := summary.Entity(domain.EntityCustomers)
	assert.Equal(t, domain.EntityDisabled, customers.Status)

	var count int64
	require.NoError(t, h.conn.Model(&reportingdomain.CustomerRow{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecentRunsPagesNewestFirst(t *testing.T) {
	h := newHarness(t, fixtureSource(), config.DefaultImportConfig())
	ctx := context.Background()

	var ids []string
	for range 3 {
		summary, err := h.svc.Run(ctx, domain.TriggerScheduled)
		require.NoError(t, err)
		ids = append(ids, summary.RunID)
	}

	page, err := h.svc.RecentRuns(ctx, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Runs, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[2], page.Runs[0].ID.String())

	next, err := h.svc.RecentRuns(ctx, pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Runs, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, ids[0], next.Runs[0].ID.String())
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studiosync/internal/clock"
	"github.com/smallbiznis/studiosync/internal/config"
	exportdomain "github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/lookup"
	obscontext "github.com/smallbiznis/studiosync/internal/observability/context"
	obslogger "github.com/smallbiznis/studiosync/internal/observability/logger"
	"github.com/smallbiznis/studiosync/internal/observability/metrics"
	"github.com/smallbiznis/studiosync/internal/observability/tracing"
	"github.com/smallbiznis/studiosync/internal/pipeline/domain"
	"github.com/smallbiznis/studiosync/internal/reporting"
	watermarkdomain "github.com/smallbiznis/studiosync/internal/watermark/domain"
	"github.com/smallbiznis/studiosync/pkg/db"
	"github.com/smallbiznis/studiosync/pkg/db/pagination"
	"github.com/smallbiznis/studiosync/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Node       *snowflake.Node
	Source     exportdomain.Source
	Store      *reporting.Store
	Repo       domain.Repository
	Watermarks watermarkdomain.Service
	Import     *config.ImportConfigHolder
	Metrics    *metrics.ImportMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	node       *snowflake.Node
	source     exportdomain.Source
	store      *reporting.Store
	repo       domain.Repository
	watermarks watermarkdomain.Service
	imports    *config.ImportConfigHolder
	metrics    *metrics.ImportMetrics
	tracer     trace.Tracer
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:         p.DB,
		log:        log.Named("pipeline"),
		clock:      p.Clock,
		node:       p.Node,
		source:     p.Source,
		store:      p.Store,
		repo:       p.Repo,
		watermarks: p.Watermarks,
		imports:    p.Import,
		metrics:    p.Metrics,
		tracer:     otel.Tracer("studiosync/pipeline"),
	}
}

// mark is a watermark advance owed by an entity type that succeeded.
type mark struct {
	reportType string
	highWater  time.Time
	count      int64
}

type entityResult struct {
	summary domain.EntitySummary
	marks   []mark
	err     error
}

// Run executes one import: index build, then every enabled entity type in
// its own transaction, then watermark advances for the types that committed.
// The summary is returned and recorded even when the run fails.
func (s *Service) Run(ctx context.Context, trigger string) (domain.RunSummary, error) {
	cfg := s.imports.Get()
	if trigger == "" {
		trigger = domain.TriggerManual
	}

	runID := s.node.Generate()
	ctx = obscontext.WithRunID(ctx, runID.String())
	ctx, cid := correlation.EnsureCorrelationID(ctx)
	ctx, span := s.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("run_id", runID.String()),
	)...))
	defer span.End()
	log := obslogger.WithContext(ctx, s.log)

	started := s.clock.Now().UTC()
	summary := domain.RunSummary{
		RunID:         runID.String(),
		CorrelationID: cid,
		Trigger:       trigger,
		Status:        domain.StatusRunning,
		StartedAt:     started,
	}
	run := &domain.ImportRun{
		ID:        runID,
		Trigger:   trigger,
		Status:    domain.StatusRunning,
		StartedAt: started,
	}
	if err := s.repo.Create(ctx, s.db, run); err != nil {
		summary.Status = domain.StatusFailed
		summary.Error = err.Error()
		summary.FinishedAt = s.clock.Now().UTC()
		s.metrics.ObserveRun(summary.Status, summary.FinishedAt.Sub(started), summary.FinishedAt)
		return summary, fmt.Errorf("%w: record run: %w", domain.ErrRunFailed, err)
	}
	log.Info("pipeline.run.start",
		zap.String("trigger", trigger),
		zap.Int("lanes", cfg.Lanes),
		zap.Int("batch_size", cfg.BatchSize),
	)

	runErr := s.execute(ctx, cfg, &summary, log)
	s.finish(ctx, run, &summary, runErr, log)

	span.SetAttributes(tracing.SafeAttributes(attribute.String("status", summary.Status))...)
	if runErr != nil {
		span.RecordError(tracing.SafeError(runErr))
		span.SetStatus(codes.Error, summary.Status)
	}
	return summary, runErr
}

func (s *Service) execute(ctx context.Context, cfg config.ImportConfig, summary *domain.RunSummary, log *zap.Logger) error {
	if !db.SupportsUpsert(s.db) {
		summary.Status = domain.StatusFailed
		return fmt.Errorf("%w: %w: %s", domain.ErrRunFailed, domain.ErrUpsertUnsupported, s.db.Dialector.Name())
	}

	summary.Windows = s.windows(ctx, log)

	tables, err := s.source.ReferenceTables(ctx)
	if err != nil {
		summary.Status = domain.StatusFailed
		return fmt.Errorf("%w: reference tables: %w", domain.ErrRunFailed, err)
	}
	idx := lookup.Build(tables, s.log)
	summary.Indexes = idx.Sizes()

	entities := domain.Entities()
	results := make([]entityResult, len(entities))
	var revenueSummary *domain.RevenueSummary

	var g errgroup.Group
	g.SetLimit(max(cfg.Lanes, 1))
	for i, entity := range entities {
		if !cfg.EntityEnabled(entity) {
			results[i] = entityResult{summary: domain.EntitySummary{Entity: entity, Status: domain.EntityDisabled}}
			continue
		}
		g.Go(func() error {
			results[i] = s.runEntity(ctx, entity, idx, cfg, &revenueSummary)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	attempted, failed := 0, 0
	for _, result := range results {
		summary.Entities = append(summary.Entities, result.summary)
		switch result.summary.Status {
		case domain.EntityDisabled:
			continue
		case domain.EntityFailed:
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", result.summary.Entity, result.err))
		}
		attempted++
	}
	summary.Revenue = revenueSummary

	// Watermarks only move for entity types whose rows committed, so a failed
	// type is fetched again from its previous mark.
	for _, result := range results {
		if result.summary.Status != domain.EntitySucceeded {
			continue
		}
		for _, m := range result.marks {
			notes := map[string]any{"run_id": summary.RunID, "entity": result.summary.Entity}
			if err := s.watermarks.Advance(ctx, m.reportType, m.highWater, m.count, notes); err != nil {
				log.Error("pipeline.watermark.failed", zap.String("report_type", m.reportType), zap.Error(err))
				summary.WatermarkErrors = append(summary.WatermarkErrors, fmt.Sprintf("%s: %v", m.reportType, err))
				errs = append(errs, fmt.Errorf("watermark %s: %w", m.reportType, err))
				continue
			}
			s.metrics.SetHighWater(m.reportType, m.highWater)
		}
	}

	switch {
	case attempted > 0 && failed == attempted:
		summary.Status = domain.StatusFailed
		return fmt.Errorf("%w: %w", domain.ErrRunFailed, errors.Join(errs...))
	case len(errs) > 0:
		summary.Status = domain.StatusPartial
		return fmt.Errorf("%w: %w", domain.ErrRunPartial, errors.Join(errs...))
	default:
		summary.Status = domain.StatusSucceeded
		return nil
	}
}

func (s *Service) windows(ctx context.Context, log *zap.Logger) []watermarkdomain.Window {
	var windows []watermarkdomain.Window
	for _, reportType := range watermarkdomain.ReportTypes() {
		var (
			window watermarkdomain.Window
			err    error
		)
		if reportType == watermarkdomain.ReportRevenue {
			window, err = s.watermarks.RevenueWindow(ctx)
		} else {
			window, err = s.watermarks.NextWindow(ctx, reportType)
		}
		if err != nil {
			log.Warn("pipeline.window.failed", zap.String("report_type", reportType), zap.Error(err))
			continue
		}
		windows = append(windows, window)
	}
	return windows
}

func (s *Service) runEntity(ctx context.Context, entity string, idx *lookup.Indexes, cfg config.ImportConfig, rev **domain.RevenueSummary) entityResult {
	ctx, span := s.tracer.Start(ctx, "pipeline.entity", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("entity", entity),
	)...))
	defer span.End()
	if reportTypes := domain.ReportTypes(entity); len(reportTypes) > 0 {
		ctx = obscontext.WithReportType(ctx, reportTypes[0])
	}
	log := obslogger.WithContext(ctx, s.log).With(zap.String("entity", entity))

	start := time.Now()
	var result entityResult
	switch entity {
	case domain.EntityCustomers:
		result = s.customers(ctx, idx, cfg)
	case domain.EntityAutoRenews:
		result = s.autoRenews(ctx, idx, cfg)
	case domain.EntityOrders:
		result = s.orders(ctx, idx, cfg)
	case domain.EntityRegistrations:
		result = s.registrations(ctx, idx, cfg)
	case domain.EntityRevenue:
		var summary domain.RevenueSummary
		result = s.revenue(ctx, idx, cfg, &summary, log)
		*rev = &summary
	default:
		result.err = fmt.Errorf("unknown entity %q", entity)
	}

	result.summary.Entity = entity
	result.summary.DurationMs = time.Since(start).Milliseconds()
	switch {
	case result.err != nil:
		// The transaction rolled back, so nothing of this type persisted.
		result.summary.Status = domain.EntityFailed
		result.summary.Persisted = 0
		result.summary.Error = result.err.Error()
		result.summary.ErrorClass = db.ClassifyError(result.err)
		result.marks = nil
		s.metrics.IncEntityFailure(entity, result.summary.ErrorClass)
		span.RecordError(tracing.SafeError(result.err))
		span.SetStatus(codes.Error, result.summary.ErrorClass)
		log.Error("pipeline.entity.failed",
			zap.String("error_class", result.summary.ErrorClass),
			zap.Int("processed", result.summary.Processed),
			zap.Error(result.err),
		)
		return result
	case result.summary.Status == "":
		result.summary.Status = domain.EntitySucceeded
	}

	today := clock.Today(s.clock)
	for i := range result.marks {
		if result.marks[i].highWater.After(today) {
			result.marks[i].highWater = today
		}
	}
	if len(result.marks) > 0 && !result.marks[0].highWater.IsZero() {
		highWater := result.marks[0].highWater
		result.summary.HighWater = &highWater
	}

	span.SetAttributes(tracing.SafeAttributes(attribute.Int64("rows", result.summary.Persisted))...)
	log.Info("pipeline.entity.finish",
		zap.String("status", result.summary.Status),
		zap.Int("processed", result.summary.Processed),
		zap.Int("emitted", result.summary.Emitted),
		zap.Int64("persisted", result.summary.Persisted),
		zap.Int("batches", result.summary.Batches),
		zap.Any("skipped", result.summary.Skipped),
		zap.Int64("duration_ms", result.summary.DurationMs),
	)
	return result
}

func (s *Service) finish(ctx context.Context, run *domain.ImportRun, summary *domain.RunSummary, runErr error, log *zap.Logger) {
	finished := s.clock.Now().UTC()
	summary.FinishedAt = finished
	summary.DurationMs = finished.Sub(summary.StartedAt).Milliseconds()
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	summary.Trace = correlation.InjectTrace(ctx, nil)

	payload, err := json.Marshal(summary)
	if err != nil {
		log.Error("pipeline.summary.encode_failed", zap.Error(err))
		payload = nil
	}
	run.Status = summary.Status
	run.FinishedAt = &finished
	run.Summary = payload

	// A cancelled run is still recorded.
	if err := s.repo.Finish(context.WithoutCancel(ctx), s.db, run); err != nil {
		log.Error("pipeline.run.record_failed", zap.Error(err))
	}

	for _, entity := range summary.Entities {
		s.metrics.AddRows(entity.Entity, metrics.OutcomeProcessed, entity.Processed)
		s.metrics.AddRows(entity.Entity, metrics.OutcomeEmitted, entity.Emitted)
		s.metrics.AddRows(entity.Entity, metrics.OutcomePersisted, int(entity.Persisted))
		for reason, count := range entity.Skipped {
			s.metrics.AddRows(entity.Entity, metrics.OutcomeSkipped, count)
			s.metrics.AddSkipped(entity.Entity, reason, count)
		}
	}
	s.metrics.ObserveRun(summary.Status, finished.Sub(summary.StartedAt), finished)

	fields := []zap.Field{
		zap.String("status", summary.Status),
		zap.Int64("duration_ms", summary.DurationMs),
		zap.Int("entities", len(summary.Entities)),
		zap.Int("watermark_errors", len(summary.WatermarkErrors)),
	}
	if summary.Revenue != nil {
		fields = append(fields, zap.Bool("revenue_computed", summary.Revenue.Computed))
	}
	if runErr != nil {
		log.Error("pipeline.run.finish", append(fields, zap.Error(runErr))...)
		return
	}
	log.Info("pipeline.run.finish", fields...)
}

// RecentRuns pages through run records, newest first.
func (s *Service) RecentRuns(ctx context.Context, page pagination.Pagination) (domain.ListRunsResponse, error) {
	runs, err := s.repo.List(ctx, s.db, page)
	if err != nil {
		return domain.ListRunsResponse{}, err
	}
	runs, info := pagination.BuildCursorPageInfo(runs, page.Size(), func(run domain.ImportRun) pagination.Cursor {
		return pagination.Cursor{ID: run.ID.String()}
	})
	if runs == nil {
		runs = []domain.ImportRun{}
	}
	return domain.ListRunsResponse{Runs: runs, PageInfo: info}, nil
}

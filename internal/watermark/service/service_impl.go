package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/studiosync/internal/clock"
	"github.com/smallbiznis/studiosync/internal/config"
	"github.com/smallbiznis/studiosync/internal/watermark/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const overlap = 24 * time.Hour

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   domain.Repository
	Import *config.ImportConfigHolder
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
	floor func() time.Time
}

func New(p Params) domain.Service {
	return NewService(p.DB, p.Repo, p.Clock, func() time.Time { return p.Import.Get().Floor() }, p.Log)
}

// NewService builds the tracker with an explicit floor source. floor is
// called on every window so a reloaded config takes effect immediately.
func NewService(db *gorm.DB, repo domain.Repository, c clock.Clock, floor func() time.Time, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:    db,
		log:   log.Named("watermark.service"),
		clock: c,
		repo:  repo,
		floor: floor,
	}
}

func (s *Service) Get(ctx context.Context, reportType string) (*domain.Watermark, error) {
	reportType, err := normalizeReportType(reportType)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, s.db, reportType)
}

// NextWindow starts at the historical floor for a type never fetched, and one
// day before the stored high-water date otherwise. It always ends today.
func (s *Service) NextWindow(ctx context.Context, reportType string) (domain.Window, error) {
	wm, err := s.Get(ctx, reportType)
	if err != nil {
		return domain.Window{}, err
	}

	today := clock.Today(s.clock)
	window := domain.Window{
		ReportType: strings.ToLower(strings.TrimSpace(reportType)),
		Start:      truncateDay(s.floor()),
		End:        today,
	}
	if wm != nil && wm.HighWaterDate != nil {
		window.Start = truncateDay(*wm.HighWaterDate).Add(-overlap)
		window.Overlap = true
	}
	if window.Start.After(today) {
		window.Start = today
	}
	return window, nil
}

// RevenueWindow widens the revenue window to whole months. Monthly totals are
// replaced on every run, so a month is only safe to recompute from all of it.
func (s *Service) RevenueWindow(ctx context.Context) (domain.Window, error) {
	window, err := s.NextWindow(ctx, domain.ReportRevenue)
	if err != nil {
		return domain.Window{}, err
	}
	window.Start = time.Date(window.Start.Year(), window.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	return window, nil
}

// Advance records a successful import. The stored high-water date never moves
// backwards and never passes today; a zero highWater leaves it untouched.
func (s *Service) Advance(ctx context.Context, reportType string, highWater time.Time, count int64, notes map[string]any) error {
	reportType, err := normalizeReportType(reportType)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.Get(ctx, tx, reportType)
		if err != nil {
			return err
		}

		wm := &domain.Watermark{
			ReportType:    reportType,
			LastFetchedAt: s.clock.Now().UTC(),
			RecordCount:   count,
			Notes:         datatypes.JSONMap(notes),
		}
		if existing != nil {
			wm.HighWaterDate = existing.HighWaterDate
		}
		if !highWater.IsZero() {
			candidate := truncateDay(highWater)
			if today := clock.Today(s.clock); candidate.After(today) {
				candidate = today
			}
			if wm.HighWaterDate == nil || candidate.After(truncateDay(*wm.HighWaterDate)) {
				wm.HighWaterDate = &candidate
			}
		}

		if err := s.repo.Upsert(ctx, tx, wm); err != nil {
			return err
		}

		fields := []zap.Field{
			zap.String("report_type", reportType),
			zap.Int64("record_count", count),
		}
		if wm.HighWaterDate != nil {
			fields = append(fields, zap.Time("high_water_date", *wm.HighWaterDate))
		}
		s.log.Info("watermark.advanced", fields...)
		return nil
	})
}

func (s *Service) List(ctx context.Context) ([]domain.Watermark, error) {
	return s.repo.List(ctx, s.db)
}

func normalizeReportType(reportType string) (string, error) {
	reportType = strings.ToLower(strings.TrimSpace(reportType))
	if reportType == "" {
		return "", domain.ErrInvalidReportType
	}
	return reportType, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/studiosync/internal/watermark/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, reportType string) (*domain.Watermark, error) {
	var wm domain.Watermark
	err := db.WithContext(ctx).
		Where("report_type = ?", reportType).
		Take(&wm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wm, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, wm *domain.Watermark) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "report_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_fetched_at", "high_water_date", "record_count", "notes"}),
	}).Create(wm).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Watermark, error) {
	var items []domain.Watermark
	err := db.WithContext(ctx).
		Order("report_type asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

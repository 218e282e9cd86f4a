package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, reportType string) (*Watermark, error)
	Upsert(ctx context.Context, db *gorm.DB, wm *Watermark) error
	List(ctx context.Context, db *gorm.DB) ([]Watermark, error)
}

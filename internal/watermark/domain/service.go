package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Get(ctx context.Context, reportType string) (*Watermark, error)
	NextWindow(ctx context.Context, reportType string) (Window, error)
	RevenueWindow(ctx context.Context) (Window, error)
	Advance(ctx context.Context, reportType string, highWater time.Time, count int64, notes map[string]any) error
	List(ctx context.Context) ([]Watermark, error)
}

var ErrInvalidReportType = errors.New("invalid_report_type")

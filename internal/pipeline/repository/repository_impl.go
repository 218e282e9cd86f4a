package repository

import (
	"context"
	"strconv"

	"github.com/smallbiznis/studiosync/internal/pipeline/domain"
	"github.com/smallbiznis/studiosync/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, run *domain.ImportRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) Finish(ctx context.Context, db *gorm.DB, run *domain.ImportRun) error {
	return db.WithContext(ctx).
		Model(&domain.ImportRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":      run.Status,
			"finished_at": run.FinishedAt,
			"summary":     run.Summary,
		}).Error
}

// List pages newest first. Snowflake ids grow with time, so the id alone is
// the cursor.
func (r *repo) List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]domain.ImportRun, error) {
	stmt := db.WithContext(ctx).Model(&domain.ImportRun{})

	cursor, err := page.After()
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where("id < ?", id)
	}

	var runs []domain.ImportRun
	err = stmt.
		Order("id desc").
		Limit(page.Size() + 1).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

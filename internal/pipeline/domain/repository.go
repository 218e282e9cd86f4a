package domain

import (
	"context"

	"github.com/smallbiznis/studiosync/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, run *ImportRun) error
	Finish(ctx context.Context, db *gorm.DB, run *ImportRun) error
	List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]ImportRun, error)
}

package reporting

import (
	"context"

	"github.com/smallbiznis/studiosync/internal/reporting/domain"
	"github.com/smallbiznis/studiosync/internal/reporting/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("reporting.store",
	fx.Provide(repository.Provide),
	fx.Provide(NewStore),
)

// Store owns the reporting connection. Each entity type of a run is applied
// through one InTx call so a failure rolls back that type alone.
type Store struct {
	db   *gorm.DB
	Repo domain.Repository
}

func NewStore(db *gorm.DB, repo domain.Repository) *Store {
	return &Store{db: db, Repo: repo}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

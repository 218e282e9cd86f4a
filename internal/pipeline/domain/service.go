package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/studiosync/pkg/db/pagination"
)

// Triggers recorded on a run.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

var (
	ErrUpsertUnsupported = errors.New("upsert_unsupported_dialect")
	ErrRunFailed         = errors.New("run_failed")
	ErrRunPartial        = errors.New("run_partial")
)

type ListRunsResponse struct {
	Runs []ImportRun `json:"runs"`
	pagination.PageInfo
}

type Service interface {
	Run(ctx context.Context, trigger string) (RunSummary, error)
	RecentRuns(ctx context.Context, page pagination.Pagination) (ListRunsResponse, error)
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studiosync/internal/lookup"
	"github.com/smallbiznis/studiosync/internal/revenue"
	watermarkdomain "github.com/smallbiznis/studiosync/internal/watermark/domain"
	"gorm.io/datatypes"
)

// Run statuses. A run is partial when at least one entity type or watermark
// failed while another succeeded.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Entity statuses within a run.
const (
	EntitySucceeded = "succeeded"
	EntityFailed    = "failed"
	EntityDisabled  = "disabled"
	// EntityNotComputed marks revenue skipped because the category lookup was empty.
	EntityNotComputed = "not_computed"
)

// Entity types, the independent units of atomicity of a run.
const (
	EntityCustomers     = "customers"
	EntityAutoRenews    = "auto_renews"
	EntityOrders        = "orders"
	EntityRegistrations = "registrations"
	EntityRevenue       = "revenue"
)

func Entities() []string {
	return []string{
		EntityCustomers,
		EntityAutoRenews,
		EntityOrders,
		EntityRegistrations,
		EntityRevenue,
	}
}

// ReportTypes lists the watermarks an entity type advances on success.
func ReportTypes(entity string) []string {
	switch entity {
	case EntityCustomers:
		return []string{watermarkdomain.ReportMemberships}
	case EntityAutoRenews:
		return []string{watermarkdomain.ReportPasses}
	case EntityOrders:
		return []string{watermarkdomain.ReportOrders}
	case EntityRegistrations:
		return []string{watermarkdomain.ReportRegistrations}
	case EntityRevenue:
		return []string{watermarkdomain.ReportRevenue, watermarkdomain.ReportRefunds}
	default:
		return nil
	}
}

// ImportRun is the durable record of one pipeline run.
type ImportRun struct {
	ID         snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Trigger    string         `gorm:"type:varchar(32);not null" json:"trigger"`
	Status     string         `gorm:"type:varchar(32);not null" json:"status"`
	StartedAt  time.Time      `gorm:"not null;index" json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Summary    datatypes.JSON `json:"summary,omitempty"`
}

func (ImportRun) TableName() string { return "import_runs" }

// EntitySummary reports one entity type of a run.
type EntitySummary struct {
	Entity     string         `json:"entity"`
	Status     string         `json:"status"`
	Processed  int            `json:"processed"`
	Emitted    int            `json:"emitted"`
	Persisted  int64          `json:"persisted"`
	Batches    int            `json:"batches"`
	Skipped    map[string]int `json:"skipped,omitempty"`
	HighWater  *time.Time     `json:"high_water,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorClass string         `json:"error_class,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

func (s EntitySummary) Failed() bool { return s.Status == EntityFailed }

// RevenueSummary reports the attribution of a run.
type RevenueSummary struct {
	Computed bool          `json:"computed"`
	Stats    revenue.Stats `json:"stats"`
	Months   []string      `json:"months,omitempty"`
	Buckets  int           `json:"buckets"`
}

// RunSummary is produced for every run, including failed ones.
type RunSummary struct {
	RunID           string                   `json:"run_id"`
	CorrelationID   string                   `json:"correlation_id,omitempty"`
	Trigger         string                   `json:"trigger"`
	Status          string                   `json:"status"`
	StartedAt       time.Time                `json:"started_at"`
	FinishedAt      time.Time                `json:"finished_at"`
	DurationMs      int64                    `json:"duration_ms"`
	Indexes         lookup.Sizes             `json:"indexes"`
	Windows         []watermarkdomain.Window `json:"windows,omitempty"`
	Entities        []EntitySummary          `json:"entities"`
	Revenue         *RevenueSummary          `json:"revenue,omitempty"`
	WatermarkErrors []string                 `json:"watermark_errors,omitempty"`
	Error           string                   `json:"error,omitempty"`
	Trace           map[string]any           `json:"trace,omitempty"`
}

// Entity returns the summary of one entity type.
func (s RunSummary) Entity(entity string) (EntitySummary, bool) {
	for _, e := range s.Entities {
		if e.Entity == entity {
			return e, true
		}
	}
	return EntitySummary{}, false
}

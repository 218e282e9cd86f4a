package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Report types tracked by the importer.
const (
	ReportMemberships   = "memberships"
	ReportPasses        = "passes"
	ReportOrders        = "orders"
	ReportRegistrations = "registrations"
	ReportRefunds       = "refunds"
	ReportRevenue       = "revenue"
)

func ReportTypes() []string {
	return []string{
		ReportMemberships,
		ReportPasses,
		ReportOrders,
		ReportRegistrations,
		ReportRefunds,
		ReportRevenue,
	}
}

// Watermark records how far a report type has been absorbed. A nil
// HighWaterDate means the type was never fetched.
type Watermark struct {
	ReportType    string            `gorm:"primaryKey;type:varchar(64)" json:"report_type"`
	LastFetchedAt time.Time         `gorm:"not null" json:"last_fetched_at"`
	HighWaterDate *time.Time        `json:"high_water_date,omitempty"`
	RecordCount   int64             `gorm:"not null;default:0" json:"record_count"`
	Notes         datatypes.JSONMap `json:"notes,omitempty"`
}

func (Watermark) TableName() string { return "watermarks" }

// Window is an inclusive date range to request from the export.
type Window struct {
	ReportType string    `json:"report_type"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	// Overlap is true when Start was pulled back one day behind the stored mark.
	Overlap bool `json:"overlap"`
}

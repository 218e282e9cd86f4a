package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EntityAutoRenew    = "pass"
	EntityOrder        = "order"
	EntityRegistration = "registration"
)

// AutoRenewRow is one live subscription pass.
type AutoRenewRow struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	DedupKey      string          `gorm:"type:varchar(512);not null;uniqueIndex:ux_auto_renews_dedup_key"`
	PlanName      string          `gorm:"type:varchar(255)"`
	PlanState     string          `gorm:"type:varchar(64)"`
	PlanPrice     decimal.Decimal `gorm:"type:decimal(12,2)"`
	CustomerName  string          `gorm:"type:varchar(255)"`
	CustomerEmail string          `gorm:"type:varchar(255);index"`
	PassCreatedAt *time.Time
	CanceledAt    *time.Time
	SourcePassID  string `gorm:"type:varchar(64)"`

	Identity Identity `gorm:"-"`
}

func (AutoRenewRow) TableName() string { return "auto_renews" }

// OrderRow is one order as reported downstream.
type OrderRow struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	DedupKey      string          `gorm:"type:varchar(512);not null;uniqueIndex:ux_orders_dedup_key"`
	SourceOrderID string          `gorm:"type:varchar(64);index"`
	OrderedAt     *time.Time
	CustomerName  string          `gorm:"type:varchar(255)"`
	CustomerEmail string          `gorm:"type:varchar(255);index"`
	Type          string          `gorm:"type:varchar(255)"`
	Payment       string          `gorm:"type:varchar(64)"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2)"`
	State         string          `gorm:"type:varchar(32)"`

	Identity Identity `gorm:"-"`
}

func (OrderRow) TableName() string { return "orders" }

// RegistrationRow is one attendance fact with its pass and class resolved.
type RegistrationRow struct {
	ID                   int64  `gorm:"primaryKey;autoIncrement"`
	DedupKey             string `gorm:"type:varchar(512);not null;uniqueIndex:ux_registrations_dedup_key"`
	EventName            string `gorm:"type:varchar(255)"`
	PerformanceStartsAt  *time.Time
	LocationName         string `gorm:"type:varchar(255)"`
	TeacherName          string `gorm:"type:varchar(255)"`
	FirstName            string `gorm:"type:varchar(255)"`
	LastName             string `gorm:"type:varchar(255)"`
	Email                string `gorm:"type:varchar(255);index"`
	AttendedAt           *time.Time
	State                string          `gorm:"type:varchar(32)"`
	PassName             string          `gorm:"type:varchar(255)"`
	IsSubscription       bool
	Revenue              decimal.Decimal `gorm:"type:decimal(12,2)"`
	SourceRegistrationID string          `gorm:"type:varchar(64)"`

	Identity Identity `gorm:"-"`
}

func (RegistrationRow) TableName() string { return "registrations" }

// CustomerRow is keyed by email. Aggregates are filled downstream; nil means
// "not known by this import" and never overwrites a stored value.
type CustomerRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Email      string `gorm:"type:varchar(255);not null;uniqueIndex:ux_customers_email"`
	Name       string `gorm:"type:varchar(255)"`
	Role       string `gorm:"type:varchar(64)"`
	JoinedAt   *time.Time
	OrderCount *int
	VisitCount *int
	TotalSpend *decimal.Decimal `gorm:"type:decimal(12,2)"`
}

func (CustomerRow) TableName() string { return "customers" }

// RevenueCategoryTotal is the attributed revenue for one month and category.
type RevenueCategoryTotal struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Month             string          `gorm:"type:varchar(7);not null;uniqueIndex:ux_revenue_totals_month_category,priority:1" json:"month"`
	Category          string          `gorm:"type:varchar(255);not null;uniqueIndex:ux_revenue_totals_month_category,priority:2" json:"category"`
	Revenue           decimal.Decimal `gorm:"type:decimal(14,2)" json:"revenue"`
	UnionFees         decimal.Decimal `gorm:"type:decimal(14,2)" json:"union_fees"`
	PaymentFees       decimal.Decimal `gorm:"type:decimal(14,2)" json:"payment_fees"`
	OtherFees         decimal.Decimal `gorm:"type:decimal(14,2)" json:"other_fees"`
	Refunded          decimal.Decimal `gorm:"type:decimal(14,2)" json:"refunded"`
	UnionFeesRefunded decimal.Decimal `gorm:"type:decimal(14,2)" json:"union_fees_refunded"`
	NetRevenue        decimal.Decimal `gorm:"type:decimal(14,2)" json:"net_revenue"`
}

func (RevenueCategoryTotal) TableName() string { return "revenue_category_totals" }

// Net derives net revenue from the accumulators, rounded to cents.
func (t RevenueCategoryTotal) Net() decimal.Decimal {
	return t.Revenue.
		Sub(t.UnionFees).
		Sub(t.PaymentFees).
		Sub(t.OtherFees).
		Sub(t.Refunded).
		Add(t.UnionFeesRefunded).
		Round(2)
}

// Models lists every table owned by the reporting store.
func Models() []any {
	return []any{
		&AutoRenewRow{},
		&OrderRow{},
		&RegistrationRow{},
		&CustomerRow{},
		&RevenueCategoryTotal{},
	}
}

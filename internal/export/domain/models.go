package domain

import "github.com/shopspring/decimal"

// Raw records as exported by the studio platform. IDs are opaque strings and
// timestamps are kept as exported text; parsing happens where a date matters.

type Membership struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Role      string
	CreatedAt string
}

type Pass struct {
	ID                   string
	MembershipID         string
	Name                 string
	State                string
	Price                decimal.Decimal
	AutoRenewUnlimited   bool
	AutoRenewPeriodLimit int
	PassTypeID           string
	CreatedAt            string
	CanceledAt           string
}

// IsSubscription reports whether the pass renews automatically.
func (p Pass) IsSubscription() bool {
	return p.AutoRenewUnlimited || p.AutoRenewPeriodLimit > 0
}

type Order struct {
	ID                 string
	MembershipID       string
	EventID            string
	SubscriptionPassID string
	PaidWithPassID     string
	PaymentMethod      string
	Total              decimal.Decimal
	FeeUnionTotal      decimal.Decimal
	FeePaymentTotal    decimal.Decimal
	FeeOutsideTotal    decimal.Decimal
	State              string
	CreatedAt          string
	CompletedAt        string
}

const (
	OrderStateCompleted = "completed"
	OrderStateRefunded  = "refunded"
)

type Registration struct {
	ID            string
	PassID        string
	PerformanceID string
	AttendedAt    string
	State         string
	Revenue       decimal.Decimal
}

type Performance struct {
	ID                  string
	EventID             string
	LocationID          string
	TeacherMembershipID string
	StartsAt            string
	Name                string
}

type Event struct {
	ID                string
	Name              string
	RevenueCategoryID string
}

type Location struct {
	ID   string
	Name string
}

type PassType struct {
	ID                string
	RevenueCategoryID string
}

type RevenueCategory struct {
	ID   string
	Name string
}

type Refund struct {
	ID                    string
	OrderID               string
	RevenueCategoryID     string
	AmountRefunded        decimal.Decimal
	FeeUnionTotalRefunded decimal.Decimal
	CreatedAt             string
	State                 string
}

// ReferenceTables are the small tables loaded wholly into memory for a run.
type ReferenceTables struct {
	Memberships       []Membership
	Passes            []Pass
	Performances      []Performance
	Events            []Event
	Locations         []Location
	PassTypes         []PassType
	RevenueCategories []RevenueCategory
}

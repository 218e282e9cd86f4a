package lookup

import (
	"github.com/smallbiznis/studiosync/internal/export/domain"
	"go.uber.org/zap"
)

// Indexes holds one read-only index per reference table.
type Indexes struct {
	memberships       *Index[domain.Membership]
	passes            *Index[domain.Pass]
	performances      *Index[domain.Performance]
	events            *Index[domain.Event]
	locations         *Index[domain.Location]
	passTypes         *Index[domain.PassType]
	revenueCategories *Index[domain.RevenueCategory]
}

// Sizes reports the number of indexed records per table.
type Sizes struct {
	Memberships       int `json:"memberships"`
	Passes            int `json:"passes"`
	Performances      int `json:"performances"`
	Events            int `json:"events"`
	Locations         int `json:"locations"`
	PassTypes         int `json:"pass_types"`
	RevenueCategories int `json:"revenue_categories"`
}

// Build indexes every reference table by its raw id and logs the index sizes.
func Build(tables domain.ReferenceTables, log *zap.Logger) *Indexes {
	idx := &Indexes{
		memberships:       newIndex(tables.Memberships, func(m domain.Membership) string { return m.ID }),
		passes:            newIndex(tables.Passes, func(p domain.Pass) string { return p.ID }),
		performances:      newIndex(tables.Performances, func(p domain.Performance) string { return p.ID }),
		events:            newIndex(tables.Events, func(e domain.Event) string { return e.ID }),
		locations:         newIndex(tables.Locations, func(l domain.Location) string { return l.ID }),
		passTypes:         newIndex(tables.PassTypes, func(p domain.PassType) string { return p.ID }),
		revenueCategories: newIndex(tables.RevenueCategories, func(c domain.RevenueCategory) string { return c.ID }),
	}

	if log != nil {
		sizes := idx.Sizes()
		log.Named("lookup").Info("lookup.indexes.built",
			zap.Int("memberships", sizes.Memberships),
			zap.Int("passes", sizes.Passes),
			zap.Int("performances", sizes.Performances),
			zap.Int("events", sizes.Events),
			zap.Int("locations", sizes.Locations),
			zap.Int("pass_types", sizes.PassTypes),
			zap.Int("revenue_categories", sizes.RevenueCategories),
		)
	}
	return idx
}

func (i *Indexes) Membership(id string) (domain.Membership, bool) { return i.memberships.Get(id) }
func (i *Indexes) Pass(id string) (domain.Pass, bool)             { return i.passes.Get(id) }
func (i *Indexes) Performance(id string) (domain.Performance, bool) {
	return i.performances.Get(id)
}
func (i *Indexes) Event(id string) (domain.Event, bool)       { return i.events.Get(id) }
func (i *Indexes) Location(id string) (domain.Location, bool) { return i.locations.Get(id) }
func (i *Indexes) PassType(id string) (domain.PassType, bool) { return i.passTypes.Get(id) }
func (i *Indexes) RevenueCategory(id string) (domain.RevenueCategory, bool) {
	return i.revenueCategories.Get(id)
}

// Memberships and Passes expose the full tables for transforms that iterate
// them rather than join into them.
func (i *Indexes) Memberships() *Index[domain.Membership] { return i.memberships }
func (i *Indexes) Passes() *Index[domain.Pass]             { return i.passes }

func (i *Indexes) Sizes() Sizes {
	return Sizes{
		Memberships:       i.memberships.Len(),
		Passes:            i.passes.Len(),
		Performances:      i.performances.Len(),
		Events:            i.events.Len(),
		Locations:         i.locations.Len(),
		PassTypes:         i.passTypes.Len(),
		RevenueCategories: i.revenueCategories.Len(),
	}
}

// MembershipName joins first and last name, trimming whichever is blank.
func MembershipName(m domain.Membership) string {
	switch {
	case m.FirstName == "":
		return m.LastName
	case m.LastName == "":
		return m.FirstName
	default:
		return m.FirstName + " " + m.LastName
	}
}

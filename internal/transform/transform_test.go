package transform

import (
	"testing"

	"github.com/shopspring/decimal"
	exportdomain "github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/lookup"
	"github.com/smallbiznis/studiosync/internal/reporting/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndexes() *lookup.Indexes {
	return lookup.Build(exportdomain.ReferenceTables{
		Memberships: []exportdomain.Membership{
			{ID: "m1", FirstName: "Ada", LastName: "Lovelace", Email: " Ada@Example.test ", Role: "student", CreatedAt: "2025-06-01"},
			{ID: "m2", FirstName: "Grace", LastName: "Hopper", Email: "", Role: "student"},
			{ID: "t1", FirstName: "Tess", LastName: "Teacher", Email: "tess@example.test", Role: "teacher"},
		},
		Passes: []exportdomain.Pass{
			{ID: "p1", MembershipID: "m1", Name: "Unlimited", State: "Active", Price: decimal.RequireFromString("149.00"), AutoRenewUnlimited: true, CreatedAt: "2026-01-05"},
			{ID: "p2", MembershipID: "m1", Name: "Ten Pack", State: "Active"},
			{ID: "p3", MembershipID: "m1", Name: "Old Unlimited", State: "Expired", AutoRenewUnlimited: true},
			{ID: "p4", MembershipID: "m2", Name: "Monthly", State: "Trialing", AutoRenewPeriodLimit: 12},
			{ID: "p5", MembershipID: "ghost", Name: "Monthly", State: "Paused", AutoRenewPeriodLimit: 3},
			{ID: "p6", MembershipID: "m1", Name: "Monthly", State: "Trialing", AutoRenewPeriodLimit: 12},
		},
		Performances: []exportdomain.Performance{
			{ID: "perf1", EventID: "e1", LocationID: "l1", TeacherMembershipID: "t1", StartsAt: "2026-02-10T18:00:00Z", Name: "Evening Flow"},
		},
		Events:    []exportdomain.Event{{ID: "e1", Name: "Vinyasa"}},
		Locations: []exportdomain.Location{{ID: "l1", Name: "Main Room"}},
	}, nil)
}

func TestAutoRenews(t *testing.T) {
	rows, stats := AutoRenews(testIndexes(), nil)

	assert.Equal(t, 6, stats.Processed)
	assert.Equal(t, 1, stats.SkippedNotAutoRenew)
	assert.Equal(t, 1, stats.SkippedExpired)
	assert.Equal(t, 2, stats.SkippedNoMember, "blank email and unknown membership")
	require.Len(t, rows, 2)

	assert.Equal(t, "Valid Now", rows[0].PlanState)
	assert.Equal(t, "ada@example.test", rows[0].CustomerEmail)
	assert.Equal(t, "Ada Lovelace", rows[0].CustomerName)
	assert.Equal(t, "pass:p1", rows[0].DedupKey)
	assert.Equal(t, domain.IdentityBySourceID, rows[0].Identity.Kind)
	require.NotNil(t, rows[0].PassCreatedAt)

	assert.Equal(t, "In Trial", rows[1].PlanState)
}

func TestAutoRenewsExpiredUnlimitedPass(t *testing.T) {
	idx := lookup.Build(exportdomain.ReferenceTables{
		Memberships: []exportdomain.Membership{{ID: "m1", Email: "a@example.test"}},
		Passes:      []exportdomain.Pass{{ID: "p1", MembershipID: "m1", State: "Expired", AutoRenewUnlimited: true}},
	}, nil)

	rows, stats := AutoRenews(idx, DefaultStateVocabulary)
	assert.Empty(t, rows)
	assert.Equal(t, 1, stats.SkippedExpired)
}

func TestAutoRenewsNaturalKeyWithoutSourceID(t *testing.T) {
	idx := lookup.Build(exportdomain.ReferenceTables{
		Memberships: []exportdomain.Membership{{ID: "m1", Email: "a@example.test"}},
	}, nil)
	// Passes without ids cannot be indexed, so exercise the identity directly.
	id := domain.IdentityFor(domain.EntityAutoRenew, "", "a@example.test", "Monthly", "2026-01-01T00:00:00Z")
	assert.Equal(t, domain.IdentityByNaturalKey, id.Kind)
	assert.NotEqual(t, id.Key, domain.IdentityFor(domain.EntityAutoRenew, "", "a@example.test", "Monthly", "").Key)
	assert.Equal(t, 1, idx.Sizes().Memberships)
}

func TestTranslateState(t *testing.T) {
	assert.Equal(t, "Valid Now", TranslateState("Active", DefaultStateVocabulary))
	assert.Equal(t, "In Trial", TranslateState("Trialing", DefaultStateVocabulary))
	assert.Equal(t, "Pending Cancel", TranslateState("Pending Cancel", DefaultStateVocabulary))
}

func TestOrdersOrphanMembership(t *testing.T) {
	rows := Orders([]exportdomain.Order{
		{ID: "o1", MembershipID: "nobody", Total: decimal.RequireFromString("25.00"), State: "completed", CreatedAt: "2026-02-01"},
		{ID: "o2", MembershipID: "m1", PaidWithPassID: "p2", Total: decimal.RequireFromString("10.00"), State: "completed"},
	}, testIndexes())

	require.Len(t, rows, 2)
	assert.Equal(t, "o1", rows[0].SourceOrderID)
	assert.Equal(t, "order:o1", rows[0].DedupKey)
	assert.Empty(t, rows[0].CustomerName)
	assert.Empty(t, rows[0].CustomerEmail)
	assert.True(t, rows[0].Total.Equal(decimal.RequireFromString("25.00")))

	assert.Equal(t, "Ten Pack", rows[1].Type)
	assert.Equal(t, "Ada Lovelace", rows[1].CustomerName)
	assert.Nil(t, rows[1].OrderedAt)
}

func TestRegistrationsResolveChains(t *testing.T) {
	rows := Registrations([]exportdomain.Registration{
		{ID: "r1", PassID: "p1", PerformanceID: "perf1", AttendedAt: "2026-02-10T18:05:00Z", State: "attended", Revenue: decimal.RequireFromString("12.50")},
		{ID: "", PassID: "", PerformanceID: "missing", AttendedAt: "2026-02-11", State: "attended"},
	}, testIndexes())

	require.Len(t, rows, 2)
	first := rows[0]
	assert.Equal(t, "Vinyasa", first.EventName)
	assert.Equal(t, "Main Room", first.LocationName)
	assert.Equal(t, "Tess Teacher", first.TeacherName)
	assert.Equal(t, "Unlimited", first.PassName)
	assert.True(t, first.IsSubscription)
	assert.Equal(t, "ada@example.test", first.Email)
	assert.Equal(t, "registration:r1", first.DedupKey)

	dropIn := rows[1]
	assert.False(t, dropIn.IsSubscription)
	assert.Empty(t, dropIn.TeacherName)
	assert.Equal(t, domain.IdentityByNaturalKey, dropIn.Identity.Kind)
}

func TestCustomers(t *testing.T) {
	rows, stats := Customers(testIndexes())

	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.SkippedNoEmail)
	require.Len(t, rows, 2)
	assert.Equal(t, "ada@example.test", rows[0].Email)
	assert.Nil(t, rows[0].VisitCount)
	assert.Nil(t, rows[0].TotalSpend)
}

func TestCustomersMergeDuplicateEmails(t *testing.T) {
	idx := lookup.Build(exportdomain.ReferenceTables{
		Memberships: []exportdomain.Membership{
			{ID: "m1", Email: "a@example.test", CreatedAt: "2026-01-10"},
			{ID: "m2", FirstName: "Ada", Email: "A@example.test", CreatedAt: "2025-03-01"},
		},
	}, nil)

	rows, stats := Customers(idx)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, "Ada", rows[0].Name)
	assert.Equal(t, "2025-03-01", rows[0].JoinedAt.Format("2006-01-02"))
}

package lookup

import (
	"testing"

	"github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildIndexesAndLogsSizes(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	idx := Build(domain.ReferenceTables{
		Memberships: []domain.Membership{
			{ID: "m1", FirstName: "Ada", LastName: "Lovelace"},
			{ID: "m2", FirstName: "Grace"},
			{ID: "", FirstName: "nobody"},
		},
		Events:            []domain.Event{{ID: "e1", Name: "Vinyasa"}},
		RevenueCategories: []domain.RevenueCategory{{ID: "c1", Name: "Classes"}},
	}, zap.New(core))

	m, ok := idx.Membership("m1")
	if !ok {
		t.Fatalf("expected membership m1")
	}
	assert.Equal(t, "Ada Lovelace", MembershipName(m))

	_, ok = idx.Membership("missing")
	assert.False(t, ok)
	_, ok = idx.Pass("p1")
	assert.False(t, ok, "empty tables resolve nothing")

	sizes := idx.Sizes()
	assert.Equal(t, 2, sizes.Memberships, "blank ids are not indexed")
	assert.Equal(t, 1, sizes.Events)
	assert.Equal(t, 0, sizes.Passes)

	entries := logs.FilterMessage("lookup.indexes.built").All()
	if len(entries) != 1 {
		t.Fatalf("expected one size log entry, got %d", len(entries))
	}
	assert.Equal(t, int64(2), entries[0].ContextMap()["memberships"])
}

func TestDuplicateIDsKeepLastRecord(t *testing.T) {
	idx := Build(domain.ReferenceTables{
		Locations: []domain.Location{{ID: "l1", Name: "Old"}, {ID: "l1", Name: "New"}},
	}, nil)

	loc, ok := idx.Location("l1")
	if !ok {
		t.Fatalf("expected location l1")
	}
	assert.Equal(t, "New", loc.Name)
	assert.Equal(t, 1, idx.Sizes().Locations)
}

func TestMembershipName(t *testing.T) {
	assert.Equal(t, "Lovelace", MembershipName(domain.Membership{LastName: "Lovelace"}))
	assert.Equal(t, "", MembershipName(domain.Membership{}))
}

package transform

import (
	"strings"

	exportdomain "github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/lookup"
	"github.com/smallbiznis/studiosync/internal/reporting/domain"
)

type CustomerStats struct {
	Processed      int `json:"processed"`
	Emitted        int `json:"emitted"`
	SkippedNoEmail int `json:"skipped_no_email"`
	// Duplicates counts memberships sharing an email with an earlier one.
	Duplicates int `json:"duplicates"`
}

// Customers emits one row per distinct membership email. Aggregate columns are
// left nil for downstream aggregation to fill.
func Customers(idx *lookup.Indexes) ([]domain.CustomerRow, CustomerStats) {
	var (
		rows  []domain.CustomerRow
		stats CustomerStats
		seen  = make(map[string]int)
	)
	idx.Memberships().Each(func(m exportdomain.Membership) bool {
		stats.Processed++
		email := normalizeEmail(m.Email)
		if email == "" {
			stats.SkippedNoEmail++
			return true
		}
		row := domain.CustomerRow{
			Email:    email,
			Name:     strings.TrimSpace(lookup.MembershipName(m)),
			Role:     m.Role,
			JoinedAt: exportdomain.ParseTimestampPtr(m.CreatedAt),
		}
		if pos, ok := seen[email]; ok {
			stats.Duplicates++
			rows[pos] = mergeCustomer(rows[pos], row)
			return true
		}
		seen[email] = len(rows)
		rows = append(rows, row)
		stats.Emitted++
		return true
	})
	return rows, stats
}

// mergeCustomer keeps identity fields from prev unless next has them and prev
// does not.
func mergeCustomer(prev, next domain.CustomerRow) domain.CustomerRow {
	if prev.Name == "" {
		prev.Name = next.Name
	}
	if prev.Role == "" {
		prev.Role = next.Role
	}
	if prev.JoinedAt == nil || (next.JoinedAt != nil && next.JoinedAt.Before(*prev.JoinedAt)) {
		prev.JoinedAt = next.JoinedAt
	}
	return prev
}

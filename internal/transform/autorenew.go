package transform

import (
	"strings"

	exportdomain "github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/lookup"
	"github.com/smallbiznis/studiosync/internal/reporting/domain"
)

const passStateExpired = "Expired"

// DefaultStateVocabulary maps source pass states onto the reporting vocabulary.
var DefaultStateVocabulary = map[string]string{
	"Active":   "Valid Now",
	"Trialing": "In Trial",
}

// AutoRenewStats counts why passes did not become auto-renew rows. A jump in
// any of them usually means the export schema drifted.
type AutoRenewStats struct {
	Processed           int `json:"processed"`
	Emitted             int `json:"emitted"`
	SkippedNotAutoRenew int `json:"skipped_not_auto_renew"`
	SkippedExpired      int `json:"skipped_expired"`
	SkippedNoMember     int `json:"skipped_no_member"`
}

// TranslateState maps state through vocabulary; unknown states pass through.
func TranslateState(state string, vocabulary map[string]string) string {
	if translated, ok := vocabulary[state]; ok {
		return translated
	}
	return state
}

// AutoRenews emits one row per live subscription pass with an addressable member.
func AutoRenews(idx *lookup.Indexes, vocabulary map[string]string) ([]domain.AutoRenewRow, AutoRenewStats) {
	if vocabulary == nil {
		vocabulary = DefaultStateVocabulary
	}

	var (
		rows  []domain.AutoRenewRow
		stats AutoRenewStats
	)
	idx.Passes().Each(func(pass exportdomain.Pass) bool {
		stats.Processed++
		if !pass.IsSubscription() {
			stats.SkippedNotAutoRenew++
			return true
		}
		if strings.EqualFold(strings.TrimSpace(pass.State), passStateExpired) {
			stats.SkippedExpired++
			return true
		}
		member, ok := idx.Membership(pass.MembershipID)
		if !ok || strings.TrimSpace(member.Email) == "" {
			stats.SkippedNoMember++
			return true
		}

		row := domain.AutoRenewRow{
			PlanName:      pass.Name,
			PlanState:     TranslateState(pass.State, vocabulary),
			PlanPrice:     pass.Price,
			CustomerName:  lookup.MembershipName(member),
			CustomerEmail: normalizeEmail(member.Email),
			PassCreatedAt: exportdomain.ParseTimestampPtr(pass.CreatedAt),
			CanceledAt:    exportdomain.ParseTimestampPtr(pass.CanceledAt),
			SourcePassID:  pass.ID,
		}
		row.Identity = domain.IdentityFor(domain.EntityAutoRenew, pass.ID,
			row.CustomerEmail, row.PlanName, domain.KeyTime(row.PassCreatedAt))
		row.DedupKey = row.Identity.Key
		rows = append(rows, row)
		stats.Emitted++
		return true
	})
	return rows, stats
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

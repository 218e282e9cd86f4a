package transform

import (
	exportdomain "github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/lookup"
	"github.com/smallbiznis/studiosync/internal/reporting/domain"
)

// Registrations maps one batch, resolving pass→membership and
// performance→event/location/teacher. Rows are emitted on partial resolution.
func Registrations(batch []exportdomain.Registration, idx *lookup.Indexes) []domain.RegistrationRow {
	rows := make([]domain.RegistrationRow, 0, len(batch))
	for _, reg := range batch {
		row := domain.RegistrationRow{
			AttendedAt:           exportdomain.ParseTimestampPtr(reg.AttendedAt),
			State:                reg.State,
			Revenue:              reg.Revenue,
			SourceRegistrationID: reg.ID,
		}

		if pass, ok := idx.Pass(reg.PassID); ok {
			row.PassName = pass.Name
			row.IsSubscription = pass.IsSubscription()
			if member, ok := idx.Membership(pass.MembershipID); ok {
				row.FirstName = member.FirstName
				row.LastName = member.LastName
				row.Email = normalizeEmail(member.Email)
			}
		}

		if perf, ok := idx.Performance(reg.PerformanceID); ok {
			row.PerformanceStartsAt = exportdomain.ParseTimestampPtr(perf.StartsAt)
			row.EventName = perf.Name
			if event, ok := idx.Event(perf.EventID); ok && event.Name != "" {
				row.EventName = event.Name
			}
			if loc, ok := idx.Location(perf.LocationID); ok {
				row.LocationName = loc.Name
			}
			if teacher, ok := idx.Membership(perf.TeacherMembershipID); ok {
				row.TeacherName = lookup.MembershipName(teacher)
			}
		}

		row.Identity = domain.IdentityFor(domain.EntityRegistration, reg.ID,
			row.Email, domain.KeyTime(row.AttendedAt))
		row.DedupKey = row.Identity.Key
		rows = append(rows, row)
	}
	return rows
}

package transform

import (
	exportdomain "github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/lookup"
	"github.com/smallbiznis/studiosync/internal/reporting/domain"
)

// Orders maps one batch. Every order yields a row; unresolved references
// degrade to empty strings.
func Orders(batch []exportdomain.Order, idx *lookup.Indexes) []domain.OrderRow {
	rows := make([]domain.OrderRow, 0, len(batch))
	for _, order := range batch {
		row := domain.OrderRow{
			SourceOrderID: order.ID,
			OrderedAt:     exportdomain.ParseTimestampPtr(order.CreatedAt),
			Payment:       order.PaymentMethod,
			Total:         order.Total,
			State:         order.State,
		}
		if member, ok := idx.Membership(order.MembershipID); ok {
			row.CustomerName = lookup.MembershipName(member)
			row.CustomerEmail = normalizeEmail(member.Email)
		}
		if pass, ok := idx.Pass(order.PaidWithPassID); ok {
			row.Type = pass.Name
		}
		row.Identity = domain.IdentityFor(domain.EntityOrder, order.ID,
			row.CustomerEmail, domain.KeyTime(row.OrderedAt), order.Total.StringFixed(2))
		row.DedupKey = row.Identity.Key
		rows = append(rows, row)
	}
	return rows
}

package revenue

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/lookup"
	reportingdomain "github.com/smallbiznis/studiosync/internal/reporting/domain"
	"go.uber.org/zap"
)

// ErrNotComputed is returned when the revenue category lookup is empty.
// Attribution would put every order in Uncategorized, so the caller should
// skip revenue for the run instead.
var ErrNotComputed = errors.New("revenue_not_computed")

const defaultSampleSize = 5

// CategoryTotal is the attributed revenue for one (month, category).
type CategoryTotal = reportingdomain.RevenueCategoryTotal

type Options struct {
	// Strategies are tried in order; nil means DefaultStrategies.
	Strategies []Strategy
	// SampleSize caps the uncategorized order ids kept for debugging.
	SampleSize int
}

type Stats struct {
	Categorized         int      `json:"categorized"`
	Uncategorized       int      `json:"uncategorized"`
	SkippedState        int      `json:"skipped_state"`
	SkippedNoDate       int      `json:"skipped_no_date"`
	RefundsApplied      int      `json:"refunds_applied"`
	RefundsSkipped      int      `json:"refunds_skipped"`
	UncategorizedSample []string `json:"uncategorized_sample,omitempty"`
}

type bucketKey struct {
	month    string
	category string
}

// Attributor accumulates orders then refunds into per-(month, category)
// buckets. It is not safe for concurrent use.
type Attributor struct {
	idx        *lookup.Indexes
	strategies []Strategy
	sampleSize int
	log        *zap.Logger

	buckets       map[bucketKey]*CategoryTotal
	orderCategory map[string]string
	stats         Stats
}

func NewAttributor(idx *lookup.Indexes, opts Options, log *zap.Logger) (*Attributor, error) {
	if idx == nil || idx.Sizes().RevenueCategories == 0 {
		return nil, ErrNotComputed
	}
	if log == nil {
		log = zap.NewNop()
	}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	return &Attributor{
		idx:           idx,
		strategies:    strategies,
		sampleSize:    sampleSize,
		log:           log.Named("revenue"),
		buckets:       make(map[bucketKey]*CategoryTotal),
		orderCategory: make(map[string]string),
	}, nil
}

// ResolveOrderCategory runs the strategies in priority order.
func (a *Attributor) ResolveOrderCategory(order domain.Order) (string, bool) {
	for _, strategy := range a.strategies {
		if name, ok := strategy(order, a.idx); ok {
			return name, true
		}
	}
	return "", false
}

// AddOrders folds one batch of orders into the buckets.
func (a *Attributor) AddOrders(batch []domain.Order) {
	for _, order := range batch {
		if !eligible(order.State) {
			a.stats.SkippedState++
			continue
		}
		at, ok := domain.FirstTimestamp(order.CompletedAt, order.CreatedAt)
		if !ok {
			a.stats.SkippedNoDate++
			continue
		}

		category, ok := a.ResolveOrderCategory(order)
		if ok {
			a.stats.Categorized++
		} else {
			category = Uncategorized
			a.stats.Uncategorized++
			if len(a.stats.UncategorizedSample) < a.sampleSize {
				a.stats.UncategorizedSample = append(a.stats.UncategorizedSample, order.ID)
			}
		}
		if order.ID != "" {
			a.orderCategory[order.ID] = category
		}

		bucket := a.bucket(domain.MonthKey(at), category)
		bucket.Revenue = bucket.Revenue.Add(order.Total)
		bucket.UnionFees = bucket.UnionFees.Add(order.FeeUnionTotal)
		bucket.PaymentFees = bucket.PaymentFees.Add(order.FeePaymentTotal)
		bucket.OtherFees = bucket.OtherFees.Add(order.FeeOutsideTotal)
	}
}

// AddRefunds folds refunds in. Call it after every order batch has been
// added, since a refund without its own category borrows its order's.
func (a *Attributor) AddRefunds(batch []domain.Refund) {
	for _, refund := range batch {
		at, ok := domain.ParseTimestamp(refund.CreatedAt)
		if !ok {
			a.stats.RefundsSkipped++
			continue
		}
		category, ok := a.refundCategory(refund)
		if !ok {
			a.stats.RefundsSkipped++
			continue
		}

		bucket := a.bucket(domain.MonthKey(at), category)
		bucket.Refunded = bucket.Refunded.Add(refund.AmountRefunded.Abs())
		bucket.UnionFeesRefunded = bucket.UnionFeesRefunded.Add(refund.FeeUnionTotalRefunded.Abs())
		a.stats.RefundsApplied++
	}
}

func (a *Attributor) refundCategory(refund domain.Refund) (string, bool) {
	if category, ok := a.idx.RevenueCategory(refund.RevenueCategoryID); ok && category.Name != "" {
		return category.Name, true
	}
	category, ok := a.orderCategory[refund.OrderID]
	return category, ok && refund.OrderID != ""
}

func (a *Attributor) bucket(month, category string) *CategoryTotal {
	key := bucketKey{month: month, category: category}
	if b, ok := a.buckets[key]; ok {
		return b
	}
	b := &CategoryTotal{
		Month:             month,
		Category:          category,
		Revenue:           decimal.Zero,
		UnionFees:         decimal.Zero,
		PaymentFees:       decimal.Zero,
		OtherFees:         decimal.Zero,
		Refunded:          decimal.Zero,
		UnionFeesRefunded: decimal.Zero,
	}
	a.buckets[key] = b
	return b
}

// Totals returns every touched bucket with NetRevenue derived from the
// accumulators. Months ascend; within a month gross revenue descends.
func (a *Attributor) Totals() []CategoryTotal {
	out := make([]CategoryTotal, 0, len(a.buckets))
	for _, b := range a.buckets {
		total := *b
		total.NetRevenue = total.Net()
		out = append(out, total)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func (a *Attributor) Stats() Stats {
	stats := a.stats
	stats.UncategorizedSample = append([]string(nil), a.stats.UncategorizedSample...)
	return stats
}

// Months lists the distinct months touched so far.
func (a *Attributor) Months() []string {
	seen := make(map[string]struct{})
	for key := range a.buckets {
		seen[key.month] = struct{}{}
	}
	months := make([]string, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

// LogSummary writes the aggregate counters, including the uncategorized ratio.
func (a *Attributor) LogSummary() {
	attributed := a.stats.Categorized + a.stats.Uncategorized
	ratio := 0.0
	if attributed > 0 {
		ratio = float64(a.stats.Uncategorized) / float64(attributed)
	}
	fields := []zap.Field{
		zap.Int("categorized", a.stats.Categorized),
		zap.Int("uncategorized", a.stats.Uncategorized),
		zap.Float64("uncategorized_ratio", ratio),
		zap.Int("skipped_state", a.stats.SkippedState),
		zap.Int("skipped_no_date", a.stats.SkippedNoDate),
		zap.Int("refunds_applied", a.stats.RefundsApplied),
		zap.Int("refunds_skipped", a.stats.RefundsSkipped),
		zap.Int("buckets", len(a.buckets)),
	}
	if len(a.stats.UncategorizedSample) > 0 {
		fields = append(fields, zap.Strings("uncategorized_sample", a.stats.UncategorizedSample))
	}
	a.log.Info("revenue.attribution.summary", fields...)
}

func eligible(state string) bool {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case domain.OrderStateCompleted, domain.OrderStateRefunded:
		return true
	default:
		return false
	}
}

package revenue

import (
	"github.com/smallbiznis/studiosync/internal/export/domain"
	"github.com/smallbiznis/studiosync/internal/lookup"
)

// Uncategorized is the bucket for orders no strategy could resolve.
const Uncategorized = "Uncategorized"

// Strategy resolves the category name of an order, or reports a miss.
type Strategy func(order domain.Order, idx *lookup.Indexes) (string, bool)

// DefaultStrategies is the resolution order: first match wins.
func DefaultStrategies() []Strategy {
	return []Strategy{EventCategory, PassTypeCategory}
}

// EventCategory resolves order → event → revenue category.
func EventCategory(order domain.Order, idx *lookup.Indexes) (string, bool) {
	event, ok := idx.Event(order.EventID)
	if !ok {
		return "", false
	}
	return categoryName(idx, event.RevenueCategoryID)
}

// PassTypeCategory resolves order → pass → pass type → revenue category,
// trying the subscription pass before the pass the order was paid with.
func PassTypeCategory(order domain.Order, idx *lookup.Indexes) (string, bool) {
	for _, passID := range []string{order.SubscriptionPassID, order.PaidWithPassID} {
		pass, ok := idx.Pass(passID)
		if !ok {
			continue
		}
		passType, ok := idx.PassType(pass.PassTypeID)
		if !ok {
			continue
		}
		if name, ok := categoryName(idx, passType.RevenueCategoryID); ok {
			return name, true
		}
	}
	return "", false
}

func categoryName(idx *lookup.Indexes, id string) (string, bool) {
	category, ok := idx.RevenueCategory(id)
	if !ok || category.Name == "" {
		return "", false
	}
	return category.Name, true
}

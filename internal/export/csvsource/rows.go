package csvsource

import "github.com/smallbiznis/studiosync/internal/export/domain"

func membershipFromRow(r row) (domain.Membership, error) {
	return domain.Membership{
		ID:        r.str("id"),
		FirstName: r.str("first_name"),
		LastName:  r.str("last_name"),
		Email:     r.str("email"),
		Role:      r.str("role"),
		CreatedAt: r.str("created_at"),
	}, nil
}

func passFromRow(r row) (domain.Pass, error) {
	price, err := r.money("price")
	if err != nil {
		return domain.Pass{}, err
	}
	return domain.Pass{
		ID:                   r.str("id"),
		MembershipID:         r.str("membership_id"),
		Name:                 r.str("name"),
		State:                r.str("state"),
		Price:                price,
		AutoRenewUnlimited:   r.boolean("auto_renew_unlimited"),
		AutoRenewPeriodLimit: r.integer("auto_renew_period_limit"),
		PassTypeID:           r.str("pass_type_id"),
		CreatedAt:            r.str("created_at"),
		CanceledAt:           r.str("canceled_at"),
	}, nil
}

func performanceFromRow(r row) (domain.Performance, error) {
	return domain.Performance{
		ID:                  r.str("id"),
		EventID:             r.str("event_id"),
		LocationID:          r.str("location_id"),
		TeacherMembershipID: r.str("teacher_membership_id"),
		StartsAt:            r.str("starts_at"),
		Name:                r.str("name"),
	}, nil
}

func eventFromRow(r row) (domain.Event, error) {
	return domain.Event{
		ID:                r.str("id"),
		Name:              r.str("name"),
		RevenueCategoryID: r.str("revenue_category_id"),
	}, nil
}

func locationFromRow(r row) (domain.Location, error) {
	return domain.Location{ID: r.str("id"), Name: r.str("name")}, nil
}

func passTypeFromRow(r row) (domain.PassType, error) {
	return domain.PassType{ID: r.str("id"), RevenueCategoryID: r.str("revenue_category_id")}, nil
}

func revenueCategoryFromRow(r row) (domain.RevenueCategory, error) {
	return domain.RevenueCategory{ID: r.str("id"), Name: r.str("name")}, nil
}

func orderFromRow(r row) (domain.Order, error) {
	var (
		o   domain.Order
		err error
	)
	o.ID = r.str("id")
	o.MembershipID = r.str("membership_id")
	o.EventID = r.str("event_id")
	o.SubscriptionPassID = r.str("subscription_pass_id")
	o.PaidWithPassID = r.str("paid_with_pass_id")
	o.PaymentMethod = r.str("payment_method")
	o.State = r.str("state")
	o.CreatedAt = r.str("created_at")
	o.CompletedAt = r.str("completed_at")
	if o.Total, err = r.money("total"); err != nil {
		return o, err
	}
	if o.FeeUnionTotal, err = r.money("fee_union_total"); err != nil {
		return o, err
	}
	if o.FeePaymentTotal, err = r.money("fee_payment_total"); err != nil {
		return o, err
	}
	if o.FeeOutsideTotal, err = r.money("fee_outside_total"); err != nil {
		return o, err
	}
	return o, nil
}

func registrationFromRow(r row) (domain.Registration, error) {
	revenue, err := r.money("revenue")
	if err != nil {
		return domain.Registration{}, err
	}
	return domain.Registration{
		ID:            r.str("id"),
		PassID:        r.str("pass_id"),
		PerformanceID: r.str("performance_id"),
		AttendedAt:    r.str("attended_at"),
		State:         r.str("state"),
		Revenue:       revenue,
	}, nil
}

func refundFromRow(r row) (domain.Refund, error) {
	amount, err := r.money("amount_refunded")
	if err != nil {
		return domain.Refund{}, err
	}
	unionFees, err := r.money("fee_union_total_refunded")
	if err != nil {
		return domain.Refund{}, err
	}
	return domain.Refund{
		ID:                    r.str("id"),
		OrderID:               r.str("order_id"),
		RevenueCategoryID:     r.str("revenue_category_id"),
		AmountRefunded:        amount,
		FeeUnionTotalRefunded: unionFees,
		CreatedAt:             r.str("created_at"),
		State:                 r.str("state"),
	}, nil
}

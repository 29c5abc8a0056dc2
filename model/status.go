package model

import "fmt"

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
	StatusRefunded  OrderStatus = "refunded"
)

// ParseOrderStatus accepts only the five lifecycle states. Anything else
// coming from storage or a client is rejected here.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusPaid, StatusDelivered, StatusCancelled, StatusRefunded:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Paid reports whether the status implies captured funds.
func (s OrderStatus) Paid() bool {
	return s == StatusPaid || s == StatusDelivered
}

// Terminal states accept no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrEmptyCart         = errors.New("cart empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrGatewayMismatch   = errors.New("gateway identifiers do not match order")
)

// Shortage names a line that could not be reserved.
type Shortage struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type InsufficientStockError struct {
	Lines []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		label := l.Name
		if label == "" {
			label = l.ProductID
		}
		parts = append(parts, fmt.Sprintf("%s (size %s): requested %d, available %d", label, l.Size, l.Requested, l.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type CouponReason string

const (
	CouponNotFound     CouponReason = "not_found"
	CouponExpired      CouponReason = "expired"
	CouponNotYetActive CouponReason = "not_yet_active"
)

type CouponError struct {
	Code   string
	Reason CouponReason
}

func (e *CouponError) Error() string {
	switch e.Reason {
	case CouponNotFound:
		return fmt.Sprintf("coupon %q not found", e.Code)
	case CouponExpired:
		return fmt.Sprintf("coupon %q has expired", e.Code)
	case CouponNotYetActive:
		return fmt.Sprintf("coupon %q is not active yet", e.Code)
	}
	return fmt.Sprintf("coupon %q invalid", e.Code)
}

type InvalidTransitionError struct {
	OrderID   string
	From      OrderStatus
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot %s from %s", e.OrderID, e.Attempted, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// GatewayMismatchError is raised when a gateway event refers to identifiers
// that disagree with what is stored on the order.
type GatewayMismatchError struct {
	OrderID  string
	Field    string
	Stored   string
	Received string
}

func (e *GatewayMismatchError) Error() string {
	return fmt.Sprintf("order %s: %s mismatch (stored %q, received %q)", e.OrderID, e.Field, e.Stored, e.Received)
}

func (e *GatewayMismatchError) Is(target error) bool { return target == ErrGatewayMismatch }

// Package cart turns the lines sitting in a shopper's cart into the
// immutable snapshot an order is built from.
package cart

import (
	"fmt"

	"checkout-engine/model"
)

// Snapshot copies lines verbatim. The catalog is not consulted again: the
// name, size, color and price captured when each line was added are what
// the order will carry.
func Snapshot(lines []model.Line) ([]model.Line, error) {
	if len(lines) == 0 {
		return nil, model.ErrEmptyCart
	}
	out := make([]model.Line, len(lines))
	for i, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("line %d (%s): quantity must be > 0", i, l.ProductID)
		}
		if l.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("line %d (%s): unit price must be >= 0", i, l.ProductID)
		}
		out[i] = l
	}
	return out, nil
}

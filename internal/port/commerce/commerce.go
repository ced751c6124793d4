// Package commerce defines the order lookup port consumed by the augmenter.
package commerce

import "context"

// Order is the commerce collaborator's view of an order.
type Order struct {
	OrderID             string  `json:"order_id"`
	Total               float64 `json:"total"`
	Status              string  `json:"status"`
	CustomerDisplayName string  `json:"customer_display_name"`
}

// Lookup resolves order references against the commerce backend.
// Implementations return domain.NotFoundError for unknown order ids and
// domain.TimeoutError when the per-call deadline fires.
type Lookup interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
}

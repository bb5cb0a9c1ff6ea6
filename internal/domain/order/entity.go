package order

import (
	"encoding/json"

	"tableside/internal/domain/cart"
	"tableside/internal/domain/money"
)

// Status is the fixed order-lifecycle vocabulary. The backend still emits
// legacy labels for the first two states; NormalizeStatus maps them at the
// decode boundary.
type Status string

const (
	StatusRequested Status = "requested"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusServed    Status = "served"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// NormalizeStatus maps the backend's legacy labels onto the current
// vocabulary and passes everything else through.
func NormalizeStatus(raw string) Status {
	switch raw {
	case "pending":
		return StatusRequested
	case "cooking":
		return StatusPreparing
	default:
		return Status(raw)
	}
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = NormalizeStatus(raw)
	return nil
}

// Order is a read-only historical order; the client never mutates one.
type Order struct {
	ID          int64        `json:"id"`
	OrderNumber string       `json:"order_number"`
	Status      Status       `json:"status"`
	TotalAmount money.Amount `json:"total_amount"`
	CreatedAt   string       `json:"created_at"`
	Sale        *Sale        `json:"sale,omitempty"`
}

// Sale is the fulfilled voucher attached to an order.
type Sale struct {
	ID            int64      `json:"id"`
	VoucherNumber string     `json:"sales_voucher_no"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	Items         []SaleItem `json:"items"`
}

// SaleItem is one line of the order snapshot.
type SaleItem struct {
	ID        int64          `json:"id"`
	ProductID int64          `json:"product_id"`
	Quantity  cart.Quantity  `json:"quantity"`
	UnitPrice money.Amount   `json:"uom_price"`
	Subtotal  money.Amount   `json:"subtotal"`
	Variation *SaleVariation `json:"variation,omitempty"`
}

// SaleVariation carries the display names for a sale line.
type SaleVariation struct {
	FullName string            `json:"fullName,omitempty"`
	Product  *cart.ProductInfo `json:"product,omitempty"`
}

// History splits orders into in-progress and finished buckets, as the
// history endpoint returns them.
type History struct {
	CurrentOrders []Order `json:"current_orders"`
	PastOrders    []Order `json:"past_orders"`
}

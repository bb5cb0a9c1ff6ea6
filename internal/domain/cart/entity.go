package cart

import (
	"bytes"
	"fmt"
	"strconv"

	"tableside/internal/domain/money"
)

// Cart is the server-authoritative shopping cart for one table visit.
type Cart struct {
	ID             int64  `json:"id"`
	SessionID      string `json:"session_id"`
	TableSessionID *int64 `json:"table_session_id,omitempty"`
	TableID        *int64 `json:"table_id,omitempty"`
	Items          []Item `json:"items,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// Item is one cart line. Product, Variant and ProductFullName are display
// enrichment the mutation endpoints may echo back empty; the merge rule in
// merge.go keeps the richer copy.
type Item struct {
	ID              int64        `json:"id"`
	CartID          int64        `json:"cart_id"`
	ProductID       int64        `json:"product_id"`
	VariantID       int64        `json:"product_variant_id"`
	UnitID          int64        `json:"uom_id"`
	Quantity        Quantity     `json:"quantity"`
	UnitPrice       money.Amount `json:"uom_price"`
	ProductFullName string       `json:"product_full_name"`
	Product         *ProductInfo `json:"product,omitempty"`
	Variant         *VariantInfo `json:"variant,omitempty"`
	CreatedAt       string       `json:"created_at,omitempty"`
	UpdatedAt       string       `json:"updated_at,omitempty"`
}

// ProductInfo is the nested product record the cart GET endpoint returns.
type ProductInfo struct {
	Name         string `json:"name,omitempty"`
	Image        string `json:"image,omitempty"`
	ProductImage string `json:"product_image,omitempty"`
	Description  string `json:"product_description,omitempty"`
}

// Enriched reports whether the record carries any display data worth keeping.
func (p *ProductInfo) Enriched() bool {
	return p != nil && (p.ProductImage != "" || p.Image != "" || p.Name != "")
}

// VariantInfo is the nested variant record.
type VariantInfo struct {
	FullName string `json:"fullName,omitempty"`
	SKU      string `json:"variation_sku,omitempty"`
}

func (v *VariantInfo) Enriched() bool {
	return v != nil && v.FullName != ""
}

// AddItemRequest carries everything the add endpoint needs. The engine
// validates ProductID/VariantID before any network call.
type AddItemRequest struct {
	SessionID string       `json:"session_id"`
	ProductID int64        `json:"product_id"`
	VariantID int64        `json:"product_variant_id"`
	UnitID    int64        `json:"uom_id"`
	UnitPrice money.Amount `json:"uom_price"`
	Quantity  int          `json:"quantity"`
}

// Quantity tolerates both JSON numbers and numeric strings, which the
// backend uses interchangeably.
type Quantity int

func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*q = 0
		return nil
	}
	// Some endpoints send "2.00" for whole quantities.
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse quantity %q: %w", b, err)
	}
	*q = Quantity(int(f))
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(q))), nil
}

// Total is the sum of quantity times unit price over all items, in minor
// units.
func (c *Cart) Total() money.Amount {
	if c == nil {
		return 0
	}
	var total money.Amount
	for _, item := range c.Items {
		total += item.UnitPrice.MulInt(int(item.Quantity))
	}
	return total
}

// Item returns the line with the given id, or nil.
func (c *Cart) Item(id int64) *Item {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}

// Clone deep-copies the cart so callers can hand out snapshots without
// sharing the nested enrichment records.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.TableSessionID != nil {
		v := *c.TableSessionID
		out.TableSessionID = &v
	}
	if c.TableID != nil {
		v := *c.TableID
		out.TableID = &v
	}
	if c.Items != nil {
		out.Items = make([]Item, len(c.Items))
		for i, item := range c.Items {
			out.Items[i] = item.clone()
		}
	}
	return &out
}

func (it Item) clone() Item {
	out := it
	if it.Product != nil {
		p := *it.Product
		out.Product = &p
	}
	if it.Variant != nil {
		v := *it.Variant
		out.Variant = &v
	}
	return out
}

package cart

// unknownProductName is the placeholder the mutation endpoints substitute
// when they don't join the product table.
const unknownProductName = "Unknown Product"

// Merge reconciles a fresh server response with the previously known cart.
// The server is authoritative for membership and quantities: items only in
// next are taken as-is, items only in prev are dropped. For items present
// in both, display enrichment (product record, variant record, full name)
// is kept from whichever side has the richer value, so a minimal echo from
// an update call never strips images or names the client already had.
//
// Merge never mutates its inputs.
func Merge(prev, next *Cart) *Cart {
	if next == nil {
		return prev.Clone()
	}
	if prev == nil || len(next.Items) == 0 {
		return next.Clone()
	}

	merged := next.Clone()
	for i := range merged.Items {
		existing := prev.Item(merged.Items[i].ID)
		if existing == nil {
			continue
		}
		mergeItem(&merged.Items[i], existing)
	}
	return merged
}

func mergeItem(next *Item, prev *Item) {
	if !next.Product.Enriched() && prev.Product != nil {
		p := *prev.Product
		next.Product = &p
	}
	if !next.Variant.Enriched() && prev.Variant != nil {
		v := *prev.Variant
		next.Variant = &v
	}
	if next.ProductFullName == "" || next.ProductFullName == unknownProductName {
		next.ProductFullName = prev.ProductFullName
	}
}

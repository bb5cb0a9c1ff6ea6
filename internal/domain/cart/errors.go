package cart

import "errors"

var (
	// ErrMissingProductID is returned when an add request resolves to
	// neither a product id nor a variant id.
	ErrMissingProductID = errors.New("missing product id")

	// ErrNoCart is returned for item mutations before a cart exists.
	ErrNoCart = errors.New("no active cart")
)

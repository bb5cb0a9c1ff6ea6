package repository

import "context"

// BlobStore is the local key-value store every piece of client state is
// persisted through. Get returns (nil, nil) when the key is absent.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Persisted state keys. Each record is an independent blob; writes are not
// atomic across keys, and each one is reconstructible from a fresh fetch.
const (
	KeySessionID        = "qr_menu:session_id"
	KeyCartCache        = "qr_menu:cart_cache"
	KeyPaymentRecord    = "qr_menu:promptpay_data"
	KeyActiveOrderToken = "qr_menu:active_order_token"
	KeyLocation         = "qr_menu:location"
	KeyTable            = "qr_menu:table"
	KeyViewMode         = "qr_menu:view_mode"
)

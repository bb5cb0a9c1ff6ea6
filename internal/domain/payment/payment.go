package payment

import (
	"errors"
	"time"

	"tableside/internal/domain/money"
)

// Family selects which backend endpoint group handles a code-based payment.
type Family string

const (
	// FamilyWallet is the scannable bank-wallet QR flow confirmed by the
	// payer's banking app.
	FamilyWallet Family = "promptpay"
	// FamilyCounter is the staff-presented code flow confirmed at the
	// counter.
	FamilyCounter Family = "counter"
)

func (f Family) Valid() bool {
	return f == FamilyWallet || f == FamilyCounter
}

// State is the confirmation machine's position for the current record.
type State string

const (
	StateIdle          State = "idle"
	StateCodeRequested State = "code_requested"
	StatePolling       State = "polling"
	StateConfirmed     State = "confirmed"
	StateCancelled     State = "cancelled"
	StateFailed        State = "failed"
)

// Record is an in-flight code payment. It is persisted on creation so a
// reload resumes polling instead of losing the payment.
type Record struct {
	PaymentID      int64        `json:"payment_id"`
	Token          string       `json:"token"`
	ClientSecret   string       `json:"client_secret,omitempty"`
	QRType         string       `json:"qr_type,omitempty"`
	QRCodeURL      string       `json:"qr_code_url,omitempty"`
	InstructionURL string       `json:"instruction_url,omitempty"`
	Amount         money.Amount `json:"amount"`
	Currency       string       `json:"currency"`
	ExpiresAt      string       `json:"expires_at,omitempty"`

	// Family and CreatedAt are set client-side before persisting; the
	// generation endpoints don't echo them.
	Family    Family    `json:"family"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateRequest is the payload for the per-family code generation
// endpoints.
type GenerateRequest struct {
	CartID     int64        `json:"cart_id"`
	LocationID int64        `json:"location_id"`
	Amount     money.Amount `json:"amount"`
	OrderType  string       `json:"order_type"`
}

// StatusValue is the backend's answer to a status check.
type StatusValue string

const (
	StatusPending   StatusValue = "pending"
	StatusConfirmed StatusValue = "confirmed"
	StatusFailed    StatusValue = "failed"
)

// Status is one status-check result.
type Status struct {
	PaymentID int64        `json:"payment_id"`
	Status    StatusValue  `json:"status"`
	Amount    money.Amount `json:"amount"`
	Currency  string       `json:"currency"`
	PaidAt    *string      `json:"paid_at,omitempty"`
}

// Method is one entry of the payment-method list.
type Method struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	LogoURL   string          `json:"logo_url,omitempty"`
	Note      string          `json:"note,omitempty"`
	IsEnable  int             `json:"is_enable"`
	IsDefault int             `json:"is_default"`
	Account   *PaymentAccount `json:"payment_account,omitempty"`
}

// PaymentAccount is the transfer target shown for manually verified
// methods.
type PaymentAccount struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountType   string `json:"account_type,omitempty"`
	Description   string `json:"description,omitempty"`
	QRImageURL    string `json:"qrimage_url,omitempty"`
}

// ManualRequest submits a staff-verified payment with a proof-of-transfer
// image.
type ManualRequest struct {
	CartID        int64
	LocationID    int64
	MethodID      int64
	Amount        money.Amount
	OrderType     string
	ProofImage    []byte
	ProofFilename string
}

// ManualResult acknowledges a manual submission. OrderToken, when present,
// is persisted so order tracking survives a reload.
type ManualResult struct {
	PaymentID  int64  `json:"payment_id,omitempty"`
	OrderToken string `json:"token,omitempty"`
	Message    string `json:"message,omitempty"`
}

var (
	// ErrMissingCartContext is returned when code generation is attempted
	// without a cart id or location id.
	ErrMissingCartContext = errors.New("missing cart or location context")

	// ErrNoActivePayment is returned for status operations when no record
	// is in flight.
	ErrNoActivePayment = errors.New("no active payment")

	// ErrPollWindowExceeded marks a payment whose confirmation never
	// arrived within the configured polling window.
	ErrPollWindowExceeded = errors.New("payment confirmation window exceeded")
)

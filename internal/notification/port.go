package notification

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Kind enumerates every notification the core can dispatch. Rendering and
// transport live behind the Port; the state machine only picks the kind.
type Kind string

const (
	KindActivationActive     Kind = "activation_active"
	KindActivationFree       Kind = "activation_free"
	KindActivationTrial      Kind = "activation_trial"
	KindCancellation         Kind = "cancellation"
	KindExpiration           Kind = "expiration"
	KindRenewalReminder      Kind = "renewal_reminder"
	KindExpirationReminder   Kind = "expiration_reminder"
	KindRenewalPaymentFailed Kind = "renewal_payment_failed"
	KindPaymentReceived      Kind = "payment_received"
)

// Payload carries the identifiers a renderer needs. Zero-value fields are
// simply absent for that kind.
type Payload struct {
	CustomerID   snowflake.ID
	MembershipID snowflake.ID
	PaymentID    snowflake.ID
	LevelName    string
	Amount       decimal.Decimal
	Currency     string
}

// Port dispatches a notification. Implementations must be safe for
// concurrent use; the sweep and webhook handlers share one instance.
type Port interface {
	Send(ctx context.Context, kind Kind, payload Payload) error
}

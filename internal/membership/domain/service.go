package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrMembershipNotFound  = errors.New("membership_not_found")
	ErrMembershipDisabled  = errors.New("membership_disabled")
	ErrInvalidTransition   = errors.New("invalid_status_transition")
	ErrRenewalLimitReached = errors.New("renewal_limit_reached")
	ErrAlreadyActivated    = errors.New("membership_already_activated")
)

// CreateParams captures the calculator output a new membership row
// snapshots at registration time.
type CreateParams struct {
	CustomerID      snowflake.ID
	LevelID         snowflake.ID
	Gateway         string
	AutoRenew       bool
	Trialing        bool
	InitialAmount   decimal.Decimal
	RecurringAmount decimal.Decimal
	MaximumRenewals int
	UpgradedFrom    *snowflake.ID
}

type Service interface {
	Create(ctx context.Context, p CreateParams) (*Membership, error)
	Find(ctx context.Context, id snowflake.ID) (*Membership, error)
	FindBySubscriptionKey(ctx context.Context, key string) (*Membership, error)
	// FindForCustomer returns the customer's most recent non-disabled
	// membership, or ErrMembershipNotFound.
	FindForCustomer(ctx context.Context, customerID snowflake.ID) (*Membership, error)

	// AttachPendingPayment binds the payment whose completion will
	// activate the membership.
	AttachPendingPayment(ctx context.Context, membershipID, paymentID snowflake.ID) error

	// Activate flips pending to active if and only if paymentID still
	// matches the stored pending payment pointer. Returns false when
	// another completion already consumed the pointer.
	Activate(ctx context.Context, membershipID, paymentID snowflake.ID) (bool, error)

	// Renew extends the expiration by one cycle, counting from the
	// current expiration when the membership has not lapsed and from
	// now when it has.
	Renew(ctx context.Context, membershipID snowflake.ID) error

	Cancel(ctx context.Context, membershipID snowflake.ID, wasUpgraded bool) error

	// Expire moves an active or cancelled membership to expired.
	// Returns false when the row was already expired.
	Expire(ctx context.Context, membershipID snowflake.ID) (bool, error)

	// Disable marks a membership dormant. Terminal.
	Disable(ctx context.Context, membershipID snowflake.ID) error

	// RecordFailedBilling notifies the customer of a failed renewal
	// charge, throttled to the configured count and cooldown.
	RecordFailedBilling(ctx context.Context, membershipID snowflake.ID) error

	BindGatewaySubscription(ctx context.Context, membershipID snowflake.ID, gatewayCustomerID, gatewaySubscriptionID string) error
}

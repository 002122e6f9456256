package gateway

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Capability is a feature flag a payment gateway may advertise. The core
// never talks to a gateway directly; it only consults these flags and
// hands a ChargeRequest to the external adapter.
type Capability string

const (
	CapabilityRecurring            Capability = "recurring"
	CapabilityTrial                Capability = "trial"
	CapabilityAjaxPayment          Capability = "ajax-payment"
	CapabilitySubscriptionCreation Capability = "subscription-creation"
	CapabilityExpirationExtension  Capability = "expiration-extension-on-renewals"
)

var ErrUnknownGateway = errors.New("unknown_gateway")

// Descriptor identifies one registered gateway and its capabilities.
type Descriptor struct {
	ID           string
	Label        string
	Capabilities []Capability
}

func (d Descriptor) supports(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Registry resolves gateway capability queries. It is built once at
// startup; lookups are read-only afterwards.
type Registry struct {
	gateways map[string]Descriptor
}

// NewRegistry indexes the given descriptors by id.
func NewRegistry(descriptors ...Descriptor) *Registry {
	gateways := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		gateways[normalizeID(d.ID)] = d
	}
	return &Registry{gateways: gateways}
}

// Exists reports whether a gateway id is registered.
func (r *Registry) Exists(id string) bool {
	_, ok := r.gateways[normalizeID(id)]
	return ok
}

// Supports reports whether the gateway advertises the capability.
// Unknown gateways support nothing.
func (r *Registry) Supports(id string, c Capability) bool {
	d, ok := r.gateways[normalizeID(id)]
	if !ok {
		return false
	}
	return d.supports(c)
}

// Get returns the descriptor for a gateway id.
func (r *Registry) Get(id string) (Descriptor, error) {
	d, ok := r.gateways[normalizeID(id)]
	if !ok {
		return Descriptor{}, ErrUnknownGateway
	}
	return d, nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Defaults returns the built-in gateway descriptors. Capability sets
// mirror what each adapter can actually do; the manual gateway records
// offline payments and can do nothing automatically.
func Defaults() []Descriptor {
	return []Descriptor{
		{
			ID:    "manual",
			Label: "Manual / Offline",
		},
		{
			ID:    "stripe",
			Label: "Stripe",
			Capabilities: []Capability{
				CapabilityRecurring,
				CapabilityTrial,
				CapabilityAjaxPayment,
				CapabilitySubscriptionCreation,
				CapabilityExpirationExtension,
			},
		},
		{
			ID:    "paypal",
			Label: "PayPal Express",
			Capabilities: []Capability{
				CapabilityRecurring,
				CapabilitySubscriptionCreation,
			},
		},
	}
}

// ChargeRequest is the flat structure handed to an external gateway
// adapter to execute a charge. The core fills it in; how the charge runs
// is the adapter's business.
type ChargeRequest struct {
	GatewayID         string          `json:"gateway_id"`
	SubscriptionKey   string          `json:"subscription_key"`
	UserID            int64           `json:"user_id"`
	Email             string          `json:"email"`
	Currency          string          `json:"currency"`
	InitialAmount     decimal.Decimal `json:"initial_amount"`
	RecurringAmount   decimal.Decimal `json:"recurring_amount"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
	Duration          int             `json:"duration"`
	DurationUnit      string          `json:"duration_unit"`
	TrialDuration     int             `json:"trial_duration"`
	TrialDurationUnit string          `json:"trial_duration_unit"`
	AutoRenew         bool            `json:"auto_renew"`
	StartDate         time.Time       `json:"start_date"`
}

package tracing

import (
	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute helpers for the billing entities. String form keeps ids
// readable in trace backends that truncate large integers.

func MembershipID(id snowflake.ID) attribute.KeyValue {
	return attribute.String("membership.id", id.String())
}

func PaymentID(id snowflake.ID) attribute.KeyValue {
	return attribute.String("payment.id", id.String())
}

func CustomerID(id snowflake.ID) attribute.KeyValue {
	return attribute.String("customer.id", id.String())
}

func LevelID(id snowflake.ID) attribute.KeyValue {
	return attribute.String("membership_level.id", id.String())
}

func GatewayID(id string) attribute.KeyValue {
	return attribute.String("gateway.id", id)
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service writes audit rows. Failures here are logged by the caller and
// never abort the billing operation being audited.
type Service interface {
	Record(ctx context.Context, action, targetType string, targetID snowflake.ID, metadata map[string]any) error
}

package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogPort is the default Port: it records the dispatch and leaves
// delivery to whatever ships the logs. Real installs replace it with an
// email adapter; the core neither knows nor cares.
type LogPort struct {
	log *zap.Logger
}

// NewLogPort builds a LogPort.
func NewLogPort(log *zap.Logger) *LogPort {
	return &LogPort{log: log.Named("notification")}
}

// Send logs the notification with its routing identifiers.
func (p *LogPort) Send(_ context.Context, kind Kind, payload Payload) error {
	p.log.Info("notification dispatched",
		zap.String("kind", string(kind)),
		zap.String("customer_id", payload.CustomerID.String()),
		zap.String("membership_id", payload.MembershipID.String()),
		zap.String("payment_id", payload.PaymentID.String()),
		zap.String("level", payload.LevelName),
		zap.String("amount", payload.Amount.String()),
		zap.String("currency", payload.Currency),
	)
	return nil
}

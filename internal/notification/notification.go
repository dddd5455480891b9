package notification

import (
	"context"
	"log/slog"
)

const (
	// KindAuthorizationApproved indicates a fuel purchase was approved.
	KindAuthorizationApproved = "authorization_approved"
	// KindAuthorizationRejected indicates a fuel purchase was rejected.
	KindAuthorizationRejected = "authorization_rejected"
)

// Message describes an authorization outcome event.
type Message struct {
	Kind      string
	OrgID     string
	CardID    string
	StationID string
	Detail    string
}

// Notifier delivers outcome events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes events to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"org_id", message.OrgID,
		"card_id", message.CardID,
		"station_id", message.StationID,
		"detail", message.Detail)
	return nil
}

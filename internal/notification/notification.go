package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// KindSettlementFailed reports a fee settlement that was reverted to pending.
	KindSettlementFailed = "settlement_failed"
	// KindDepositFailed reports a deposit the store could not commit.
	KindDepositFailed = "deposit_failed"
)

// Message describes an operational report.
type Message struct {
	Kind    string
	Subject string
	Body    string
}

// Notifier delivers operational reports to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes reports to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.WarnContext(ctx, "operational report",
		slog.String("kind", message.Kind),
		slog.String("subject", message.Subject),
		slog.String("body", message.Body),
	)
	return nil
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Package notify is the outbound messaging boundary. The engine renders
// offer text and hands it to a Sender; delivery, retries, and receipts live
// with the provider.
package notify

import (
	"context"

	"github.com/clinvia/revenue-engine/pkg/logging"
)

// Channel is the delivery medium recorded on a campaign.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

// Message is one rendered outbound message.
type Message struct {
	To      string
	ToName  string
	Channel Channel
	Subject string
	Body    string
}

// Sender delivers a rendered message. Implementations can be swapped
// (SendGrid, SMS provider, log-only) without changing callers. Callers pick
// the channel with Supports before committing any state tied to the send.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Supports(ch Channel) bool
}

// LogSender writes messages to the log instead of delivering them. Used in
// dev and when no provider is configured.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message but does not deliver it.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("log sender: would deliver message",
		"to", msg.To, "channel", string(msg.Channel), "subject", msg.Subject)
	return nil
}

// Supports reports true for every channel; nothing is actually delivered.
func (s *LogSender) Supports(ch Channel) bool {
	return true
}

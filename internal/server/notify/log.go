package notify

import (
	"context"

	"github.com/dmitrijs2005/timecapsule/internal/logging"
)

// LogSender writes notifications to the log instead of delivering them.
// It serves dev mode SMS and all email.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("module", "notify")}
}

func (s *LogSender) SendSMS(ctx context.Context, phone, text string) error {
	s.log.Info(ctx, "sms not sent (dev mode)", "to", phone, "body", text)
	return nil
}

func (s *LogSender) SendEmail(ctx context.Context, to, subject, body string) error {
	s.log.Info(ctx, "email not sent (no email provider)", "to", to, "subject", subject, "body", body)
	return nil
}

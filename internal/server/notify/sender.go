// Package notify delivers capsule notifications by SMS and email.
//
// Delivery is asynchronous: callers enqueue on a Dispatcher and return
// immediately; failures are logged and never reported back.
package notify

import "context"

type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

package notify

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/logging"
	"go.uber.org/ratelimit"
)

const (
	DefaultQueueSize = 256
	sendTimeout      = 15 * time.Second
)

type kind int

const (
	kindSMS kind = iota
	kindEmail
)

type job struct {
	kind    kind
	to      string
	subject string
	body    string
}

// Dispatcher queues notifications and delivers them from a single worker.
// SMS delivery is paced by a rate limiter; a full queue drops the
// notification with a warning.
type Dispatcher struct {
	sms     SMSSender
	email   EmailSender
	log     logging.Logger
	queue   chan job
	limiter ratelimit.Limiter
}

func NewDispatcher(sms SMSSender, email EmailSender, log logging.Logger, queueSize, smsPerSecond int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	limiter := ratelimit.NewUnlimited()
	if smsPerSecond > 0 {
		limiter = ratelimit.New(smsPerSecond)
	}
	return &Dispatcher{
		sms:     sms,
		email:   email,
		log:     log.With("module", "notify"),
		queue:   make(chan job, queueSize),
		limiter: limiter,
	}
}

func (d *Dispatcher) NotifySMS(ctx context.Context, phone, text string) {
	d.enqueue(ctx, job{kind: kindSMS, to: phone, body: text})
}

func (d *Dispatcher) NotifyEmail(ctx context.Context, to, subject, body string) {
	d.enqueue(ctx, job{kind: kindEmail, to: to, subject: subject, body: body})
}

func (d *Dispatcher) enqueue(ctx context.Context, j job) {
	select {
	case d.queue <- j:
	default:
		d.log.Warn(ctx, "notification queue full, dropping", "to", j.to)
	}
}

// Run delivers queued notifications until ctx is cancelled. Notifications
// still queued at that point are dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.log.Warn(context.Background(), "dropping pending notifications", "count", n)
			}
			return
		case j := <-d.queue:
			d.deliver(ctx, j)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	var err error
	switch j.kind {
	case kindSMS:
		d.limiter.Take()
		err = d.sms.SendSMS(ctx, j.to, j.body)
	case kindEmail:
		err = d.email.SendEmail(ctx, j.to, j.subject, j.body)
	}
	if err != nil {
		d.log.Error(ctx, "notification failed", "to", j.to, "error", err)
	}
}

package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mailtpl "github.com/oksasatya/mobile-otp-auth/pkg/mailer/templates"
)

// ErrPermanent marks a job that will never succeed and must not be requeued.
var ErrPermanent = errors.New("permanent email job failure")

// Processor turns a queued EmailJob into a sent message.
type Processor struct {
	sender Sender
}

func NewProcessor(sender Sender) *Processor {
	return &Processor{sender: sender}
}

// Handle decodes and delivers one message body. Errors wrapping ErrPermanent
// mean the body is unusable; any other error is a delivery failure worth
// retrying.
func (p *Processor) Handle(ctx context.Context, body []byte) error {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrPermanent, err)
	}
	if strings.TrimSpace(job.To) == "" {
		return fmt.Errorf("%w: missing recipient", ErrPermanent)
	}
	ensureRecipient(&job)

	subject, text, html := job.Subject, job.Text, job.HTML
	if job.Template != "" {
		if !mailtpl.Known(job.Template) {
			return fmt.Errorf("%w: unknown template %q", ErrPermanent, job.Template)
		}
		s, t, h, err := mailtpl.Render(job.Template, job.Data)
		if err != nil {
			return fmt.Errorf("%w: render %s: %v", ErrPermanent, job.Template, err)
		}
		subject, text, html = s, t, h
	}
	if subject == "" || (text == "" && html == "") {
		return fmt.Errorf("%w: empty message", ErrPermanent)
	}
	return p.sender.Send(ctx, job.To, subject, text, html)
}

func ensureRecipient(job *EmailJob) {
	if job.Data == nil {
		job.Data = map[string]any{}
	}
	for _, k := range []string{"Email", "RecipientEmail"} {
		if v, ok := job.Data[k]; !ok || fmt.Sprintf("%v", v) == "" {
			job.Data[k] = job.To
		}
	}
}

// Acknowledger is the settle half of a queue delivery (amqp091.Delivery).
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type Disposition int

const (
	Acked Disposition = iota
	Requeued
	Dropped
)

func (d Disposition) String() string {
	switch d {
	case Acked:
		return "acked"
	case Requeued:
		return "requeued"
	default:
		return "dropped"
	}
}

// Settle acks or nacks a delivery according to the outcome of Handle.
// A retryable failure is requeued once; a delivery that was already
// redelivered is dropped so a dead recipient cannot spin the queue.
func Settle(d Acknowledger, redelivered bool, handleErr error) (Disposition, error) {
	switch {
	case handleErr == nil:
		return Acked, d.Ack(false)
	case errors.Is(handleErr, ErrPermanent), redelivered:
		return Dropped, d.Nack(false, false)
	default:
		return Requeued, d.Nack(false, true)
	}
}

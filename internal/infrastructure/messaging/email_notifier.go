package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oksasatya/mobile-otp-auth/config"
	"github.com/oksasatya/mobile-otp-auth/internal/application"
	"github.com/oksasatya/mobile-otp-auth/pkg/mailer"
	mailtpl "github.com/oksasatya/mobile-otp-auth/pkg/mailer/templates"
)

const publishTimeout = 3 * time.Second

// Publisher puts a JSON message on the email queue.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// EmailNotifier queues email jobs for the email worker.
type EmailNotifier struct {
	pub Publisher
	cfg *config.Config
}

var _ application.Notifier = (*EmailNotifier)(nil)

func NewEmailNotifier(pub Publisher, cfg *config.Config) *EmailNotifier {
	return &EmailNotifier{pub: pub, cfg: cfg}
}

func (n *EmailNotifier) ProfileCompleted(ctx context.Context, ev application.ProfileCompleted) error {
	if strings.TrimSpace(ev.Email) == "" {
		return nil
	}
	name := strings.TrimSpace(ev.FirstName + " " + ev.LastName)
	job := mailer.EmailJob{
		To:       ev.Email,
		Template: mailtpl.ProfileCompleted,
		Data: mailtpl.NewProfileCompletedData(n.cfg, name, ev.Email,
			mailtpl.WithMobileNumber(ev.MobileNumber),
			mailtpl.WithTime(ev.CompletedAt),
		),
	}

	c, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := n.pub.PublishJSON(c, job); err != nil {
		return fmt.Errorf("publish %s email: %w", job.Template, err)
	}
	return nil
}

package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/mobile-otp-auth/config"
	"github.com/oksasatya/mobile-otp-auth/internal/application"
	"github.com/oksasatya/mobile-otp-auth/pkg/mailer"
)

type fakePublisher struct {
	bodies []any
	err    error
}

func (f *fakePublisher) PublishJSON(ctx context.Context, body any) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	f.bodies = append(f.bodies, body)
	return f.err
}

var event = application.ProfileCompleted{
	UserID:       "11111111-1111-1111-1111-111111111111",
	MobileNumber: "09123456789",
	FirstName:    "John",
	LastName:     "Doe",
	Email:        "john.doe@example.com",
	CompletedAt:  time.Date(2024, time.August, 2, 12, 30, 0, 0, time.UTC),
}

func TestProfileCompleted_QueuesTemplatedJob(t *testing.T) {
	pub := &fakePublisher{}
	n := NewEmailNotifier(pub, &config.Config{AppName: "mobile-otp-auth", SupportURL: "https://support.test"})

	require.NoError(t, n.ProfileCompleted(context.Background(), event))
	require.Len(t, pub.bodies, 1)

	job, ok := pub.bodies[0].(mailer.EmailJob)
	require.True(t, ok)
	assert.Equal(t, "john.doe@example.com", job.To)
	assert.Equal(t, "profile_completed", job.Template)
	assert.Equal(t, "John Doe", job.Data["Name"])
	assert.Equal(t, "09123456789", job.Data["MobileNumber"])
	assert.Equal(t, "02 August 2024, 12:30", job.Data["Time"])
	assert.Equal(t, "https://support.test", job.Data["SupportURL"])
}

func TestProfileCompleted_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	n := NewEmailNotifier(pub, &config.Config{})

	err := n.ProfileCompleted(context.Background(), event)
	assert.ErrorContains(t, err, "channel closed")
}

func TestProfileCompleted_NoEmailNoJob(t *testing.T) {
	pub := &fakePublisher{}
	n := NewEmailNotifier(pub, &config.Config{})

	ev := event
	ev.Email = ""
	require.NoError(t, n.ProfileCompleted(context.Background(), ev))
	assert.Empty(t, pub.bodies)
}

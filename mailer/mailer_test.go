package mailer

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

var poll = &polls.Poll{
	ID:          "abc123",
	Title:       "Lunch",
	Description: "Where do we eat?",
	ExpiresAt:   time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC),
}

func TestRender(t *testing.T) {
	m := NewLogMailer("https://vote.example.com/")
	msg, err := m.Render(poll, polls.Invitation{Email: "a@example.com", Token: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, "Invitation to vote: Lunch", msg.Subject)
	assert.Equal(t, "https://vote.example.com/polls/abc123?token=tok", msg.Link)
	assert.Contains(t, msg.Body, msg.Link)
	assert.Contains(t, msg.Body, "Where do we eat?")
	assert.Contains(t, msg.Body, "2024-06-02 12:00 UTC")
}

func TestSendInvitationLogs(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	m := NewLogMailer("http://localhost")
	require.NoError(t, m.SendInvitation(context.Background(), poll, polls.Invitation{Email: "a@example.com", Token: "secret-token-123"}))

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == log.InfoLevel && e.Data["to"] == "a@example.com" {
			found = true
			assert.NotContains(t, e.Message, "secret-token-123", "tokens stay out of info logs")
		}
	}
	assert.True(t, found)
}

func TestSendInvitationErrors(t *testing.T) {
	m := NewLogMailer("http://localhost")
	assert.Error(t, m.SendInvitation(context.Background(), poll, polls.Invitation{Token: "tok"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.SendInvitation(ctx, poll, polls.Invitation{Email: "a@example.com"}), context.Canceled)
}

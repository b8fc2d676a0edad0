// Package mailer renders poll invitations. Delivery is logged; an SMTP relay
// can sit behind the same polls.Mailer interface.
package mailer

import (
	"context"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

var (
	subjectTmpl = template.Must(template.New("subject").Parse(
		`Invitation to vote: {{.Poll.Title}}`))

	bodyTmpl = template.Must(template.New("body").Parse(`You have been invited to vote on "{{.Poll.Title}}".
{{with .Poll.Description}}
{{.}}
{{end}}
Vote here: {{.Link}}

This link is personal and can be used once.
The poll closes at {{.Poll.ExpiresAt.Format "2006-01-02 15:04 MST"}}.
`))
)

type Message struct {
	To      string
	Subject string
	Body    string
	Link    string
}

type LogMailer struct {
	frontendURL string
}

var _ polls.Mailer = (*LogMailer)(nil)

func NewLogMailer(frontendURL string) *LogMailer {
	return &LogMailer{frontendURL: strings.TrimRight(frontendURL, "/")}
}

// Link is the personal voting url carried by an invitation.
func (m *LogMailer) Link(pollID, token string) string {
	return m.frontendURL + "/polls/" + pollID + "?token=" + token
}

func (m *LogMailer) Render(poll *polls.Poll, inv polls.Invitation) (*Message, error) {
	data := struct {
		Poll *polls.Poll
		Link string
	}{poll, m.Link(poll.ID, inv.Token)}

	subject := &strings.Builder{}
	if err := subjectTmpl.Execute(subject, data); err != nil {
		return nil, errors.Wrap(err, "render subject")
	}
	body := &strings.Builder{}
	if err := bodyTmpl.Execute(body, data); err != nil {
		return nil, errors.Wrap(err, "render body")
	}
	return &Message{To: inv.Email, Subject: subject.String(), Body: body.String(), Link: data.Link}, nil
}

func (m *LogMailer) SendInvitation(ctx context.Context, poll *polls.Poll, inv polls.Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if inv.Email == "" {
		return errors.New("invitation has no recipient")
	}
	msg, err := m.Render(poll, inv)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"component": "mailer",
		"poll":      poll.ID,
		"to":        msg.To,
	}).Infof("invitation, subject=%q", msg.Subject)
	log.Debugf("invitation, link=%s\n%s", msg.Link, msg.Body)
	return nil
}

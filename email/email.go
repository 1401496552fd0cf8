package email

import (
	"context"
	"net"
	"net/smtp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/internal/config"
	"github.com/jordan-wright/email"
)

var _ campaign.Mailer = &emailer{}

type emailer struct {
	host string
	auth smtp.Auth
	from string
}

func (e *emailer) SendEmail(ctx context.Context, msg *campaign.MailerMessage) error {
	ctx, span := otel.Tracer("email").Start(ctx, "SendEmail")
	defer span.End()
	span.SetAttributes(attribute.String("email", msg.To), attribute.String("subject", msg.Subject))

	em := email.NewEmail()

	em.From = e.from
	em.To = []string{msg.To}
	if msg.ReplyTo != "" {
		em.ReplyTo = []string{msg.ReplyTo}
	}

	em.Subject = msg.Subject
	em.Text = []byte(msg.PlainContent)
	em.HTML = []byte(msg.HTMLContent)
	return em.Send(e.host, e.auth)
}

func NewMailer() (campaign.Mailer, error) {
	host, _, err := net.SplitHostPort(config.EmailConf.Host)
	if err != nil {
		return nil, err
	}
	from := config.EmailConf.From
	if from == "" {
		from = config.EmailConf.Username
	}
	return &emailer{
		host: config.EmailConf.Host,
		auth: smtp.PlainAuth("", config.EmailConf.Username, config.EmailConf.Password, host),
		from: from,
	}, nil
}

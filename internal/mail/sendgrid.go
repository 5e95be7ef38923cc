package mail

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

// SendGridTransport sends through the SendGrid v3 mail API.
type SendGridTransport struct {
	apiKey string
	host   string
	from   *sgmail.Email
}

func NewSendGridTransport(apiKey, fromName, fromEmail string) *SendGridTransport {
	return &SendGridTransport{
		apiKey: apiKey,
		host:   sendGridHost,
		from:   sgmail.NewEmail(fromName, fromEmail),
	}
}

func (t *SendGridTransport) Send(_ context.Context, msg Message, att *Attachment) error {
	m := sgmail.NewV3MailInit(t.from, msg.Subject, sgmail.NewEmail("", msg.To),
		sgmail.NewContent("text/html", msg.HTML))
	m.Headers = map[string]string{"X-Message-ID": msg.ID}
	if att != nil {
		a := sgmail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Data))
		a.SetType(att.ContentType)
		a.SetFilename(att.Name)
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}

	req := sendgrid.GetRequest(t.apiKey, "/v3/mail/send", t.host)
	req.Method = "POST"
	req.Body = sgmail.GetRequestBody(m)
	resp, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

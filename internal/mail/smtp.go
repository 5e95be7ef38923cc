package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

var (
	smtpConnectTimeout = 10 * time.Second
	// smtpSessionTimeout bounds the whole exchange after the TCP connect.
	smtpSessionTimeout = 60 * time.Second
)

// SMTPTransport sends through an authenticated STARTTLS relay such as Gmail.
type SMTPTransport struct {
	Addr     string
	Username string
	Password string
	FromName string
}

// NewSMTPTransport strips spaces from password; app passwords are shown in
// groups of four.
func NewSMTPTransport(addr, username, password, fromName string) *SMTPTransport {
	return &SMTPTransport{
		Addr:     addr,
		Username: username,
		Password: strings.ReplaceAll(password, " ", ""),
		FromName: fromName,
	}
}

func (t *SMTPTransport) from() string {
	return (&mail.Address{Name: t.FromName, Address: t.Username}).String()
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message, att *Attachment) error {
	body, err := buildMIME(t.from(), msg, att, time.Now())
	if err != nil {
		return err
	}
	cn, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer cn.Close()
	if err := cn.Mail(t.Username); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	if err := cn.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp RCPT: %w", err)
	}
	wr, err := cn.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := wr.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return cn.Quit()
}

func (t *SMTPTransport) connect(ctx context.Context) (*smtp.Client, error) {
	host, _, err := net.SplitHostPort(t.Addr)
	if err != nil {
		return nil, fmt.Errorf("smtp address %q: %w", t.Addr, err)
	}
	dialer := net.Dialer{Timeout: smtpConnectTimeout}
	c, err := dialer.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, fmt.Errorf("connect to SMTP server: %w", err)
	}
	deadline := time.Now().Add(smtpSessionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.SetDeadline(deadline); err != nil {
		c.Close()
		return nil, fmt.Errorf("smtp deadline: %w", err)
	}
	cn, err := smtp.NewClient(c, host)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create SMTP client: %w", err)
	}
	if err := cn.StartTLS(&tls.Config{ServerName: host}); err != nil {
		cn.Close()
		return nil, fmt.Errorf("StartTLS with SMTP server: %w", err)
	}
	if err := cn.Auth(smtp.PlainAuth("", t.Username, t.Password, host)); err != nil {
		cn.Close()
		return nil, fmt.Errorf("smtp auth: %w", err)
	}
	return cn, nil
}

// buildMIME renders msg as multipart/mixed with a quoted-printable HTML part
// and an optional base64 attachment.
func buildMIME(from string, msg Message, att *Attachment, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"Message-ID: <" + msg.ID + "@oscan>",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + mw.Boundary(),
	}
	buf.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	if att != nil {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(att.ContentType, map[string]string{"name": att.Name})},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Name})},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(part, att.Data); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64Lines wraps encoded data at 76 columns.
func writeBase64Lines(w interface{ Write([]byte) (int, error) }, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := w.Write([]byte(enc[:76] + "\r\n")); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := w.Write([]byte(enc + "\r\n"))
	return err
}

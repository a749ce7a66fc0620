package alert

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/infra"
)

const emailProvider = "smtp"

// SendMailFunc — сигнатура smtp.SendMail, подменяется в тестах
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel — дайджест одним письмом на всех получателей через SMTP релей
type EmailChannel struct {
	cfg      infra.EmailConfig
	guard    *Guard
	sendMail SendMailFunc
	now      func() time.Time
}

func NewEmailChannel(cfg infra.EmailConfig, guard *Guard) *EmailChannel {
	return &EmailChannel{cfg: cfg, guard: guard, sendMail: smtp.SendMail, now: time.Now}
}

// WithSendMail подменяет транспорт
func (c *EmailChannel) WithSendMail(fn SendMailFunc) *EmailChannel {
	c.sendMail = fn
	return c
}

func (c *EmailChannel) Kind() domain.ChannelKind { return domain.ChannelEmail }
func (c *EmailChannel) Provider() string          { return emailProvider }

func (c *EmailChannel) Send(ctx context.Context, subject, body string) (domain.Delivery, error) {
	if !c.cfg.Configured() {
		return domain.Delivery{Sent: false, Provider: emailProvider, Reason: domain.ReasonNotConfigured}, nil
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}
	msg := c.buildMessage(subject, body)

	send := func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.sendMail(addr, auth, c.cfg.From, c.cfg.To, msg)
		// 5xx от SMTP — постоянный отказ (адрес, авторизация), повторять бессмысленно
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return &PermanentError{Cause: err}
		}
		return err
	}

	var err error
	if c.guard != nil {
		err = c.guard.Do(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("email: send to %d recipient(s): %w", len(c.cfg.To), err)
	}
	return domain.Delivery{Sent: true, Provider: emailProvider}, nil
}

func (c *EmailChannel) buildMessage(subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + c.cfg.From + "\r\n")
	b.WriteString("To: " + strings.Join(c.cfg.To, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + c.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

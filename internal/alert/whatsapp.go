package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/infra"
	"go.uber.org/zap"
)

const (
	whatsAppProvider = "whatsapp-cloud"
	// defaultRetryAfter — если 429 пришел без Retry-After
	defaultRetryAfter = 2 * time.Second
	// maxMessageRunes — лимит длины текстового сообщения у провайдера
	maxMessageRunes = 4096
)

// WhatsAppChannel — по одному сообщению на получателя через HTTP API провайдера
type WhatsAppChannel struct {
	cfg    infra.WhatsAppConfig
	guard  *Guard
	client *http.Client
	logger *zap.Logger
}

func NewWhatsAppChannel(cfg infra.WhatsAppConfig, guard *Guard, logger *zap.Logger) *WhatsAppChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhatsAppChannel{
		cfg:    cfg,
		guard:  guard,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("whatsapp"),
	}
}

func (c *WhatsAppChannel) Kind() domain.ChannelKind { return domain.ChannelWhatsApp }
func (c *WhatsAppChannel) Provider() string          { return whatsAppProvider }

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Send: частичная доставка считается успешной, причина пишется в Reason.
// Если не доставлено никому — ошибка.
func (c *WhatsAppChannel) Send(ctx context.Context, subject, body string) (domain.Delivery, error) {
	if !c.cfg.Configured() {
		return domain.Delivery{Sent: false, Provider: whatsAppProvider, Reason: domain.ReasonNotConfigured}, nil
	}

	text := Truncate("*"+subject+"*\n\n"+body, maxMessageRunes)

	var failed []string
	var lastErr error
	for _, to := range c.cfg.Recipients {
		send := func(ctx context.Context) error { return c.post(ctx, to, text) }

		var err error
		if c.guard != nil {
			err = c.guard.Do(ctx, send)
		} else {
			err = send(ctx)
		}
		if err != nil {
			c.logger.Warn("message not delivered", zap.String("to", to), zap.Error(err))
			failed = append(failed, to)
			lastErr = err
		}
	}

	if len(failed) == len(c.cfg.Recipients) {
		return domain.Delivery{}, fmt.Errorf("whatsapp: all %d recipient(s) failed: %w", len(failed), lastErr)
	}
	d := domain.Delivery{Sent: true, Provider: whatsAppProvider}
	if len(failed) > 0 {
		d.Reason = fmt.Sprintf("partial: failed for %s", strings.Join(failed, ", "))
	}
	return d, nil
}

func (c *WhatsAppChannel) post(ctx context.Context, to, text string) error {
	msg := textMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = text

	payload, err := json.Marshal(msg)
	if err != nil {
		return &PermanentError{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return &PermanentError{Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ThrottleError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Cause: statusErr}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &PermanentError{Cause: statusErr}
	default:
		return statusErr
	}
}

// parseRetryAfter понимает секунды и HTTP-дату
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

// Package telegram provides Telegram notification services.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, event models.WakeEvent) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
	host       string
}

// New creates a new Telegram service. host names the machine running the
// daemon in outgoing messages.
func New(logger zerolog.Logger, host string) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
		host:    host,
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL, host string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		host:       host,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendNotification reports a fired wake via Telegram. Delivery failures are
// returned in the result, never as an error, so a broken bot cannot stop the
// trigger loop.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, event models.WakeEvent) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Debug().
		Str("chat_id", cfg.ChatID).
		Int("target", event.Index).
		Msg("sending Telegram notification")

	reqBody := sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      s.formatMessage(event),
		ParseMode: "HTML",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	s.logger.Debug().Msg("Telegram notification sent")

	return result, nil
}

func (s *Impl) formatMessage(event models.WakeEvent) string {
	var b bytes.Buffer

	if event.Error == nil {
		b.WriteString("⏰ <b>Wake-on-LAN sent</b>\n\n")
	} else {
		b.WriteString("❌ <b>Wake-on-LAN failed</b>\n\n")
	}

	if s.host != "" {
		b.WriteString(fmt.Sprintf("🖥 <b>Host:</b> %s\n", escapeHTML(s.host)))
	}
	b.WriteString(fmt.Sprintf("🎯 <b>Target:</b> #%d %s\n", event.Index+1, event.Target.IP))
	b.WriteString(fmt.Sprintf("📡 <b>MAC:</b> <code>%s</code>\n", event.Target.MAC))
	if event.Target.HasServer() {
		b.WriteString(fmt.Sprintf("🔗 <b>Server:</b> %s\n", event.Target.ServerIP))
	}
	b.WriteString(fmt.Sprintf("🔍 <b>Trigger:</b> %s\n", triggerName(event.Mode)))
	b.WriteString(fmt.Sprintf("🕒 <b>At:</b> %s\n", event.At.Format("2006-01-02 15:04:05")))

	if event.Error != nil {
		b.WriteString(fmt.Sprintf("\n⚠️ <b>Error:</b> <code>%s</code>\n", escapeHTML(event.Error.Error())))
	}

	return b.String()
}

func triggerName(mode models.Mode) string {
	switch mode {
	case models.ModeActive:
		return "ARP reply"
	case models.ModePassive:
		return "TCP SYN"
	default:
		return string(models.ModeManual)
	}
}

// escapeHTML escapes HTML special characters.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

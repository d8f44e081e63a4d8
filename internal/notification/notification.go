package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moex-panic-scanner/internal/detector"
)

// Notifier delivers one message to a single channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, title, message string) error
}

// Config selects and configures the delivery channels.
type Config struct {
	Enabled bool `json:"enabled"`

	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id"`

	DiscordWebhookURL string `json:"discord_webhook_url"`
}

// Manager fans a notification out to all configured channels. Delivery is
// best-effort: a failed channel is logged and the rest still run.
type Manager struct {
	notifiers []Notifier
	enabled   bool
	log       zerolog.Logger
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		enabled: cfg.Enabled,
		log:     log.With().Str("component", "notification").Logger(),
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		m.notifiers = append(m.notifiers, NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		m.notifiers = append(m.notifiers, NewDiscordNotifier(cfg.DiscordWebhookURL))
	}
	return m
}

// Enabled reports whether any channel will actually deliver.
func (m *Manager) Enabled() bool {
	return m.enabled && len(m.notifiers) > 0
}

// Notify sends a message to every configured channel.
func (m *Manager) Notify(ctx context.Context, title, message string) {
	if !m.Enabled() {
		return
	}
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, message); err != nil {
			m.log.Warn().Err(err).Str("channel", n.Name()).Msg("notification delivery failed")
		}
	}
}

// NotifySignal formats and delivers a detected signal.
func (m *Manager) NotifySignal(ctx context.Context, s *detector.PanicSignal) {
	m.Notify(ctx, signalTitle(s), FormatSignal(s))
}

func signalTitle(s *detector.PanicSignal) string {
	kind := "Panic"
	if s.SignalType == detector.SignalGreed {
		kind = "Greed"
	}
	return fmt.Sprintf("🔴 %s: %s", kind, s.Instrument)
}

// FormatSignal renders the chat message body for a signal.
func FormatSignal(s *detector.PanicSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s at %.2f\n", strings.ToUpper(string(s.SignalType)), s.Instrument, s.Price)
	fmt.Fprintf(&b, "RSI14 %.1f | volume ×%.1f | risk %.0f\n", s.RSI14, s.VolumeRatio, s.RiskScore)
	if s.Interpretation != "" {
		fmt.Fprintf(&b, "%s\n", s.Interpretation)
	}
	if s.Recommendation != "" {
		fmt.Fprintf(&b, "%s\n", s.Recommendation)
	}
	if s.ClusterSummary != "" {
		fmt.Fprintf(&b, "Zones: %s\n", s.ClusterSummary)
	}
	fmt.Fprintf(&b, "Detected %s", s.DetectedAt.Format("15:04:05"))
	return b.String()
}

// ============================================================================
// TELEGRAM
// ============================================================================

type TelegramNotifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Send(ctx context.Context, title, message string) error {
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    title + "\n\n" + message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}
	return nil
}

// ============================================================================
// DISCORD
// ============================================================================

type DiscordNotifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) Send(ctx context.Context, title, message string) error {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       0xE74C3C,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord responded with status %d", resp.StatusCode)
	}
	return nil
}

package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"launch-alerts/internal/resilience"
)

// Messenger 定义消息发送接口。
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	baseURL  string
	service  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 发送器。
func NewTelegramNotifier(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		service:  "telegram",
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// SendMessage 调用 sendMessage API 推送文本。
// 429/5xx and transport failures are transient; any other rejection (blocked
// bot, unknown chat) is a validation error and is not retried.
func (n *TelegramNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return resilience.Invalid("chat_id", "missing")
	}
	if strings.TrimSpace(text) == "" {
		return resilience.Invalid("text", "empty message")
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return resilience.Transient(n.service, 0, fmt.Errorf("send telegram request: %w", err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var result sendMessageResponse
	_ = json.Unmarshal(raw, &result)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return resilience.Transient(n.service, resp.StatusCode, fmt.Errorf("telegram 响应码异常: %d %s", resp.StatusCode, result.Description))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resilience.Invalid("chat_id", "telegram rejected chat %d: %d %s", chatID, resp.StatusCode, result.Description)
	}
	if !result.OK {
		return resilience.Invalid("chat_id", "telegram 返回 ok=false: %s", result.Description)
	}

	n.logger.Debug().Int64("chat_id", chatID).Int("chars", len(text)).Msg("消息已发送 (Telegram)")
	return nil
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// LogMessenger writes messages to the log instead of delivering them. It is
// used when Telegram is disabled.
type LogMessenger struct {
	logger zerolog.Logger
}

// NewLogMessenger builds a dry-run messenger.
func NewLogMessenger(logger zerolog.Logger) *LogMessenger {
	return &LogMessenger{logger: logger.With().Str("component", "alert_log").Logger()}
}

// SendMessage logs the message at info level.
func (l *LogMessenger) SendMessage(_ context.Context, chatID int64, text string) error {
	l.logger.Info().Int64("chat_id", chatID).Str("text", text).Msg("dry-run message")
	return nil
}

var (
	_ Messenger = (*TelegramNotifier)(nil)
	_ Messenger = (*LogMessenger)(nil)
)

package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"presyo-watcher/internal/prices"
)

// Notification 封装一次商品价格异动告警。
type Notification struct {
	Commodity      string
	Unit           string
	FirstPrice     decimal.Decimal
	CurrentPrice   decimal.Decimal
	AveragePrice   decimal.Decimal
	PriceChange    decimal.Decimal
	PriceChangePct decimal.Decimal
	ThresholdPct   decimal.Decimal
	Direction      prices.Direction
	Observations   int
	From           time.Time
	To             time.Time
	Channels       []string
	AdditionalMsg  string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
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
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("commodity", note.Commodity).
		Str("direction", string(note.Direction)).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("告警已发送 (Telegram)")
	return nil
}

// LogNotifier 将告警写入日志，适用于未配置外部通道的环境。
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify 以 warn 级别记录告警。
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().
		Str("commodity", note.Commodity).
		Str("current_price", note.CurrentPrice.StringFixed(2)).
		Str("price_change_pct", note.PriceChangePct.StringFixed(2)).
		Str("direction", string(note.Direction)).
		Msg("price movement alert")
	return nil
}

// Multi 依次调用多个告警器，汇总错误。
type Multi []Notifier

// Notify 向所有通道发送；单个通道失败不影响其他通道。
func (m Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RenderMessage formats a notification as plain text.
func RenderMessage(note Notification) string {
	unit := note.Unit
	if unit == "" {
		unit = "kg"
	}
	builder := strings.Builder{}
	builder.WriteString("[Price Movement Alert]\n")
	builder.WriteString(fmt.Sprintf("Commodity: %s\n", note.Commodity))
	builder.WriteString(fmt.Sprintf("Current: PHP %s/%s (avg %s)\n", note.CurrentPrice.StringFixed(2), unit, note.AveragePrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Change: %s (%s%%, threshold %s%%) since %s\n",
		signed(note.PriceChange), signed(note.PriceChangePct), note.ThresholdPct.StringFixed(2), formatDate(note.From)))
	builder.WriteString(fmt.Sprintf("Direction: %s over %d reports\n", note.Direction, note.Observations))
	if !note.To.IsZero() {
		builder.WriteString(fmt.Sprintf("Window: %s to %s\n", formatDate(note.From), formatDate(note.To)))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(prices.DateLayout)
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)

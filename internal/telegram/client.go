// Package telegram integrates with the Telegram Bot API: the outbound client
// used for lead notifications and the webhook that receives claim callbacks.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DmitryZaika/granite-webhooks/internal/leads/ports"
	"github.com/DmitryZaika/granite-webhooks/platform/config"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

// Client talks to the Telegram Bot API over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a Bot API client. The base URL is configurable so tests
// can point it at a local server.
func NewClient(cfg config.TelegramConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GetTelegramAPIBaseURL(), "/"),
		token:   cfg.GetTelegramBotToken(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

// SendMessage implements ports.Messenger.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (ports.MessageRef, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	return c.sendMessage(ctx, payload)
}

// SendKeyboardMessage implements ports.Messenger.
func (c *Client) SendKeyboardMessage(ctx context.Context, chatID int64, text string, keyboard [][]ports.Button) (ports.MessageRef, error) {
	markup := replyMarkup{}
	for _, row := range keyboard {
		var buttons []inlineKeyboardButton
		for _, button := range row {
			buttons = append(buttons, inlineKeyboardButton{
				Text:         button.Text,
				CallbackData: button.CallbackData,
			})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}

	payload := map[string]any{
		"chat_id":      chatID,
		"text":         text,
		"reply_markup": markup,
	}
	return c.sendMessage(ctx, payload)
}

// EditMessageText implements ports.Messenger.
func (c *Client) EditMessageText(ctx context.Context, ref ports.MessageRef, text string) error {
	payload := map[string]any{
		"chat_id":    ref.ChatID,
		"message_id": ref.MessageID,
		"text":       text,
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// AnswerCallbackQuery acknowledges an inline keyboard press so the chat
// client stops showing the loading spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	payload := map[string]any{
		"callback_query_id": callbackQueryID,
	}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

func (c *Client) sendMessage(ctx context.Context, payload map[string]any) (ports.MessageRef, error) {
	var result sentMessage
	if err := c.call(ctx, "sendMessage", payload, &result); err != nil {
		return ports.MessageRef{}, err
	}
	return ports.MessageRef{ChatID: result.Chat.ID, MessageID: result.MessageID}, nil
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read telegram response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram %s returned %d: %s", method, resp.StatusCode, apiResp.Description)
	}

	if out != nil && len(apiResp.Result) > 0 {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("decode telegram result: %w", err)
		}
	}
	return nil
}

var _ ports.Messenger = (*Client)(nil)

package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DmitryZaika/granite-webhooks/internal/leads/ports"
	leadservice "github.com/DmitryZaika/granite-webhooks/internal/leads/service"
	"github.com/DmitryZaika/granite-webhooks/platform/apperr"
	"github.com/DmitryZaika/granite-webhooks/platform/httpkit"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

// LeadClaimer assigns a lead to the salesperson picked on the inline keyboard.
type LeadClaimer interface {
	Claim(ctx context.Context, customerID, userID int64) (*leadservice.ClaimResult, error)
}

// Update is the subset of a Bot API update the webhook consumes.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// CallbackQuery is an inline keyboard press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// Message locates the prompt the button was attached to.
type Message struct {
	MessageID int64 `json:"message_id"`
	Chat      Chat  `json:"chat"`
}

// Chat is the chat a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// User is the account that pressed the button.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

// Handler processes Bot API webhook updates.
type Handler struct {
	claimer LeadClaimer
	client  *Client
	log     *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(claimer LeadClaimer, client *Client, log *logger.Logger) *Handler {
	return &Handler{claimer: claimer, client: client, log: log}
}

// HandleWebhook receives Bot API updates and processes assign callbacks.
// Unknown update types are acknowledged and dropped so Telegram does not
// retry them.
// POST /telegram/webhook
func (h *Handler) HandleWebhook(c *gin.Context) {
	var update Update
	if err := c.ShouldBindJSON(&update); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid update").WithDetails(err.Error()))
		return
	}

	if update.CallbackQuery == nil {
		c.String(http.StatusOK, "ok")
		return
	}

	ctx := c.Request.Context()
	query := update.CallbackQuery

	customerID, userID, err := parseAssignCallback(query.Data)
	if err != nil {
		h.log.WithContext(ctx).Warn("unknown_callback_data", "data", query.Data)
		h.answer(ctx, query.ID, "")
		c.String(http.StatusOK, "ok")
		return
	}

	result, err := h.claimer.Claim(ctx, customerID, userID)
	if err != nil {
		h.answer(ctx, query.ID, "Assignment failed, try again.")
		httpkit.HandleError(c, err)
		return
	}

	h.answer(ctx, query.ID, "")

	if query.Message != nil {
		ref := ports.MessageRef{ChatID: query.Message.Chat.ID, MessageID: query.Message.MessageID}
		if err := h.client.EditMessageText(ctx, ref, fmt.Sprintf("Assigned to %s", result.UserName)); err != nil {
			h.log.NotifyError("telegram", ref.ChatID, err)
		}
	}

	if result.TelegramChatID != nil {
		confirmation := fmt.Sprintf("You are assigned a lead, click here: %s", result.LeadURL)
		if _, err := h.client.SendMessage(ctx, *result.TelegramChatID, confirmation); err != nil {
			h.log.NotifyError("telegram", *result.TelegramChatID, err)
		}
	}

	c.String(http.StatusOK, "ok")
}

func (h *Handler) answer(ctx context.Context, callbackQueryID, text string) {
	if err := h.client.AnswerCallbackQuery(ctx, callbackQueryID, text); err != nil {
		h.log.WithContext(ctx).Warn("answer_callback_failed", "error", err.Error())
	}
}

// parseAssignCallback splits "assign:<customerID>:<userID>" payloads.
func parseAssignCallback(data string) (customerID, userID int64, err error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "assign" {
		return 0, 0, fmt.Errorf("unexpected callback data %q", data)
	}
	customerID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse customer id: %w", err)
	}
	userID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse user id: %w", err)
	}
	return customerID, userID, nil
}

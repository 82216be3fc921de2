package telegram

import (
	apphttp "github.com/DmitryZaika/granite-webhooks/internal/http"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

// Module bundles the Telegram webhook for registration on the router.
type Module struct {
	handler *Handler
}

// NewModule constructs the Telegram module.
func NewModule(client *Client, claimer LeadClaimer, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(claimer, client, log)}
}

// Name implements http.Module.
func (m *Module) Name() string { return "telegram" }

// RegisterRoutes implements http.Module. The webhook sits at the engine root
// because the Bot API posts to the exact URL registered with setWebhook; the
// shared secret header guards it.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Engine.POST("/telegram/webhook", ctx.TelegramAuth, m.handler.HandleWebhook)
}

package inboundemail

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DmitryZaika/granite-webhooks/internal/adapters/storage"
	"github.com/DmitryZaika/granite-webhooks/internal/events"
	apphttp "github.com/DmitryZaika/granite-webhooks/internal/http"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

// Module bundles the SES webhooks for registration on the router.
type Module struct {
	handler *Handler
}

// NewModule constructs the inbound email module.
func NewModule(db *pgxpool.Pool, objects storage.ObjectStore, attachmentsBucket string, bus events.Bus, log *logger.Logger) *Module {
	repo := NewRepository(db)
	svc := NewService(repo, objects, attachmentsBucket, bus, log)
	return &Module{handler: NewHandler(svc, log)}
}

// Name implements http.Module.
func (m *Module) Name() string { return "inboundemail" }

// RegisterRoutes implements http.Module. The SES pipeline posts through an
// API destination that carries the marketing API key header.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Engine.POST("/ses/read-receipt", ctx.MarketingAuth, m.handler.HandleReadReceipt)
	ctx.Engine.POST("/ses/received", ctx.MarketingAuth, m.handler.HandleReceived)
}

// Package leads wires the lead intake context: webhook transport, the dedup
// and routing service, and PostgreSQL persistence.
package leads

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DmitryZaika/granite-webhooks/internal/events"
	apphttp "github.com/DmitryZaika/granite-webhooks/internal/http"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/handler"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/ports"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/repository"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/service"
	"github.com/DmitryZaika/granite-webhooks/platform/config"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
	"github.com/DmitryZaika/granite-webhooks/platform/validator"
)

// Module bundles the lead intake feature for registration on the router.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule constructs the lead intake module and its dependency graph.
func NewModule(
	db *pgxpool.Pool,
	bus events.Bus,
	cfg config.NotificationConfig,
	val *validator.Validator,
	log *logger.Logger,
	messenger ports.Messenger,
	emailSender ports.EmailSender,
) *Module {
	repo := repository.NewRepository(db)
	svc := service.NewService(repo, messenger, emailSender, bus, log, cfg.GetAppBaseURL())
	return &Module{
		handler: handler.NewHandler(svc, val, log),
		service: svc,
	}
}

// Name implements http.Module.
func (m *Module) Name() string { return "leads" }

// Service exposes the orchestrator for modules that act on leads, such as
// the chat callback that claims them.
func (m *Module) Service() *service.Service { return m.service }

// RegisterRoutes implements http.Module. The intake endpoints are mounted at
// the engine root because the marketing integrations post to fixed paths.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Engine.POST("/wordpress-contact-form/:companyId", ctx.MarketingAuth, m.handler.HandleWordpressForm)
	ctx.Engine.POST("/facebook-contact-form/:companyId", ctx.MarketingAuth, m.handler.HandleFacebookForm)
	ctx.Engine.POST("/v1/webhooks/new-lead-form/:companyId", ctx.MarketingAuth, m.handler.HandleNewLeadForm)
}

// Package handler exposes the lead intake webhooks.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DmitryZaika/granite-webhooks/internal/leads/service"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/transport"
	"github.com/DmitryZaika/granite-webhooks/platform/apperr"
	"github.com/DmitryZaika/granite-webhooks/platform/httpkit"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
	"github.com/DmitryZaika/granite-webhooks/platform/validator"
)

// Handler handles lead intake HTTP requests.
type Handler struct {
	service   *service.Service
	validator *validator.Validator
	log       *logger.Logger
}

// NewHandler creates a new lead intake handler.
func NewHandler(service *service.Service, validator *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: service, validator: validator, log: log}
}

// HandleWordpressForm ingests a marketing-site contact form submission.
// POST /wordpress-contact-form/:companyId
func (h *Handler) HandleWordpressForm(c *gin.Context) {
	var form transport.WordpressContactForm
	h.processForm(c, &form, "wordpress")
}

// HandleFacebookForm ingests an ad-platform lead form submission.
// POST /facebook-contact-form/:companyId
func (h *Handler) HandleFacebookForm(c *gin.Context) {
	var form transport.FacebookContactForm
	h.processForm(c, &form, "facebook")
}

// HandleNewLeadForm ingests a submission from the in-house funnel.
// POST /v1/webhooks/new-lead-form/:companyId
func (h *Handler) HandleNewLeadForm(c *gin.Context) {
	var form transport.NewLeadForm
	h.processForm(c, &form, "internal")
}

func (h *Handler) processForm(c *gin.Context, form transport.LeadForm, source string) {
	companyID, err := strconv.ParseInt(c.Param("companyId"), 10, 64)
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid company id"))
		return
	}

	if err := c.ShouldBindJSON(form); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid payload").WithDetails(err.Error()))
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid payload").WithDetails(err.Error()))
		return
	}

	ctx := c.Request.Context()
	if err := h.service.ProcessLead(ctx, companyID, form, source); err != nil {
		h.log.WithContext(ctx).Error("process_lead_failed",
			"source", source, "company_id", companyID, "error", err.Error())
		httpkit.HandleError(c, err)
		return
	}

	c.String(http.StatusCreated, "created")
}

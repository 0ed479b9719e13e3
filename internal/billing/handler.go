package billing

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cloudvault-backend/internal/shared/server/middleware"
	"cloudvault-backend/internal/shared/server/respond"
	"cloudvault-backend/internal/shared/telemetry"
)

const webhookBodyLimit = 1 << 20

// Handler exposes billing over HTTP.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches authenticated billing routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/billing/checkout", h.checkout)
	rg.POST("/billing/portal", h.portal)
	rg.GET("/billing/subscription", h.subscription)
}

// RegisterWebhook attaches the provider webhook, which authenticates by
// signature rather than session.
func (h *Handler) RegisterWebhook(rg *gin.RouterGroup) {
	rg.POST("/billing/webhook", h.webhook)
}

type checkoutRequest struct {
	PlanID       string `json:"planId"`
	BillingCycle string `json:"billingCycle"`
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl"`
}

type urlResponse struct {
	URL string `json:"url"`
}

func (h *Handler) checkout(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	plan, err := ParsePlan(req.PlanID)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	cycle, err := ParseCycle(req.BillingCycle)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	url, err := h.Svc.StartCheckout(c.Request.Context(), principal.UserID, principal.Email, plan, cycle)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	respond.OK(c, urlResponse{URL: url})
}

func (h *Handler) portal(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	var req portalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	url, err := h.Svc.OpenPortal(c.Request.Context(), principal.UserID, req.ReturnURL)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	respond.OK(c, urlResponse{URL: url})
}

func (h *Handler) subscription(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	rec, err := h.Svc.Subscription(c.Request.Context(), principal.UserID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	respond.OK(c, rec)
}

// webhook answers 200 only after the event is reconciled. Any other status
// makes the provider redeliver, which is the only retry mechanism.
func (h *Handler) webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_payload", "failed to read request body", nil)
		return
	}
	signature := strings.TrimSpace(c.GetHeader("Stripe-Signature"))
	if signature == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_signature", "missing signature", nil)
		return
	}

	ev, res, err := h.Svc.HandleWebhook(c.Request.Context(), payload, signature)
	if ev.ID != "" {
		c.Set(middleware.EventIDKey, ev.ID)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrSignatureInvalid):
			respond.Error(c, http.StatusBadRequest, "invalid_signature", "invalid signature", nil)
		case errors.Is(err, ErrUnresolvedUser):
			respond.Error(c, http.StatusBadRequest, "unresolved_user", "event cannot be correlated to a user", nil)
		case errors.Is(err, ErrInvalidEvent):
			respond.Error(c, http.StatusBadRequest, "invalid_event", "event payload is malformed", nil)
		case errors.Is(err, ErrRetryable):
			respond.Error(c, http.StatusServiceUnavailable, "retryable", "temporarily unable to process event", nil)
		case errors.Is(err, ErrNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, "not_configured", "billing is not configured", nil)
		default:
			telemetry.Error("billing.webhook_failed", map[string]any{"event_id": ev.ID, "err": err})
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to process event", nil)
		}
		return
	}
	respond.OK(c, gin.H{"received": true, "outcome": res.Outcome})
}

func (h *Handler) serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "no subscription found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "not_configured", "billing is not configured", nil)
	case errors.Is(err, ErrRetryable):
		respond.Error(c, http.StatusServiceUnavailable, "retryable", "billing provider unavailable", nil)
	default:
		telemetry.Error("billing.request_failed", map[string]any{"err": err, "path": c.Request.URL.Path})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "billing request failed", nil)
	}
}

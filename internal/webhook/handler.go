package webhook

import (
	"net/http"
	"time"

	"bookingsync/internal/credentials"
	apphttp "bookingsync/internal/http"
	"bookingsync/internal/statusmap"
	"bookingsync/platform/apperr"
	"bookingsync/platform/httpkit"
	"bookingsync/platform/logger"
	"bookingsync/platform/validator"

	"github.com/gin-gonic/gin"
)

// tokenRefreshWindow is how much remaining validity get-token tolerates
// before forcing a refresh, so the caller never receives a token about
// to expire mid-use.
const tokenRefreshWindow = 30 * time.Minute

// Handler exposes the CRM-facing webhook endpoints.
type Handler struct {
	service *Service
	tokens  *credentials.Manager
	val     *validator.Validator
	secret  string
	log     *logger.Logger
}

func NewHandler(service *Service, tokens *credentials.Manager, val *validator.Validator, secret string, log *logger.Logger) *Handler {
	return &Handler{service: service, tokens: tokens, val: val, secret: secret, log: log}
}

type updateStatusRequest struct {
	Secret      string `json:"secret"`
	OrderID     string `json:"orderId" validate:"required"`
	NewStatusID int64  `json:"newStatusId" validate:"required"`
}

type updateDatetimeRequest struct {
	Secret       string `json:"secret"`
	OrderID      string `json:"orderId" validate:"required"`
	ScheduledFor int64  `json:"scheduledFor" validate:"required,gt=0"`
}

// UpdateStatus handles POST /update-status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation_error", "malformed request body")
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation_error", "orderId and newStatusId are required")
		return
	}
	if !h.authorized(c, req.Secret) {
		return
	}

	update, err := h.service.UpdateStatus(c.Request.Context(), req.OrderID, req.NewStatusID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{
		"success":        true,
		"message":        "status updated",
		"appointment_id": update.AppointmentID,
		"status":         update.Status,
	})
}

// UpdateDatetime handles POST /update-datetime.
func (h *Handler) UpdateDatetime(c *gin.Context) {
	var req updateDatetimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation_error", "malformed request body")
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation_error", "orderId and scheduledFor are required")
		return
	}
	if !h.authorized(c, req.Secret) {
		return
	}

	update, err := h.service.UpdateDatetime(c.Request.Context(), req.OrderID, req.ScheduledFor)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{
		"success":        true,
		"message":        "datetime updated",
		"appointment_id": update.AppointmentID,
		"new_start":      statusmap.FormatUTC(update.NewStart),
		"new_end":        statusmap.FormatUTC(update.NewEnd),
	})
}

// CheckAppointment handles GET /check-appointment. An unknown order id is
// a negative answer, not an error.
func (h *Handler) CheckAppointment(c *gin.Context) {
	if !h.authorized(c, c.Query("secret")) {
		return
	}
	externalID := c.Query("external_id")
	if externalID == "" {
		httpkit.Error(c, http.StatusBadRequest, "validation_error", "external_id is required")
		return
	}

	appointmentID, exists, err := h.service.CheckAppointment(c.Request.Context(), externalID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			httpkit.OK(c, gin.H{"success": true, "exists": false})
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{
		"success":        true,
		"exists":         exists,
		"appointment_id": appointmentID,
	})
}

// GetToken handles GET /get-token, refreshing first when the current
// token is close to expiry.
func (h *Handler) GetToken(c *gin.Context) {
	if !h.authorized(c, c.Query("secret")) {
		return
	}
	ctx := c.Request.Context()

	expiry, err := h.tokens.Expiry(ctx)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	if time.Until(expiry) < tokenRefreshWindow {
		if _, err := h.tokens.Refresh(ctx); err != nil {
			httpkit.HandleError(c, err)
			return
		}
		if expiry, err = h.tokens.Expiry(ctx); err != nil {
			httpkit.HandleError(c, err)
			return
		}
	}

	token, err := h.tokens.Token(ctx)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{
		"success": true,
		"token":   token,
		"expires": statusmap.FormatUTC(expiry),
	})
}

func (h *Handler) authorized(c *gin.Context, presented string) bool {
	if httpkit.SecretEqual(presented, h.secret) {
		return true
	}
	httpkit.Error(c, http.StatusForbidden, "forbidden", "invalid webhook secret")
	return false
}

// Module wires the webhook endpoints into the HTTP server.
type Module struct {
	handler *Handler
}

func NewModule(handler *Handler) *Module {
	return &Module{handler: handler}
}

func (m *Module) Name() string { return "webhook" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhook.POST("/update-status", m.handler.UpdateStatus)
	ctx.Webhook.POST("/update-datetime", m.handler.UpdateDatetime)
	ctx.Webhook.GET("/check-appointment", m.handler.CheckAppointment)
	ctx.Webhook.GET("/get-token", m.handler.GetToken)
}

package sync

import (
	"log/slog"
	"net/http"

	apphttp "bookingsync/internal/http"
	"bookingsync/platform/httpkit"
	"bookingsync/platform/logger"
	"bookingsync/platform/validator"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// bulkSyncConcurrency bounds parallel CRM calls during a manual batch sync.
const bulkSyncConcurrency = 4

// Handler exposes manual synchronization triggers. These sit on the
// secret-authenticated CRM group because they drive the same outbound
// workflow the webhooks complete.
type Handler struct {
	service *Service
	val     *validator.Validator
	secret  string
	log     *logger.Logger
}

func NewHandler(service *Service, val *validator.Validator, secret string, log *logger.Logger) *Handler {
	return &Handler{service: service, val: val, secret: secret, log: log}
}

type syncRequest struct {
	AppointmentID int64  `json:"appointment_id" validate:"required,gt=0"`
	Secret        string `json:"secret"`
}

type bulkSyncRequest struct {
	AppointmentIDs []int64 `json:"appointment_ids" validate:"required,min=1,max=100,dive,gt=0"`
	Secret         string  `json:"secret"`
}

// SyncAppointment handles POST /sync-appointment.
func (h *Handler) SyncAppointment(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation_error", "malformed request body")
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation_error", "appointment_id is required")
		return
	}
	if !httpkit.SecretEqual(req.Secret, h.secret) {
		httpkit.Error(c, http.StatusForbidden, "forbidden", "invalid webhook secret")
		return
	}

	if err := h.service.SyncAppointment(c.Request.Context(), req.AppointmentID); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{
		"success":        true,
		"message":        "appointment synchronized",
		"appointment_id": req.AppointmentID,
	})
}

// SyncBatch handles POST /sync-batch. Appointments are processed
// concurrently with a small worker bound; per-appointment failures are
// reported without aborting the batch.
func (h *Handler) SyncBatch(c *gin.Context) {
	var req bulkSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation_error", "malformed request body")
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation_error", "appointment_ids must hold 1-100 positive ids")
		return
	}
	if !httpkit.SecretEqual(req.Secret, h.secret) {
		httpkit.Error(c, http.StatusForbidden, "forbidden", "invalid webhook secret")
		return
	}

	ctx := c.Request.Context()
	results := make([]gin.H, len(req.AppointmentIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkSyncConcurrency)
	for i, id := range req.AppointmentIDs {
		i, id := i, id
		g.Go(func() error {
			if err := h.service.SyncAppointment(gctx, id); err != nil {
				h.log.WithAppointment(id).Error("manual sync failed", slog.String("error", err.Error()))
				results[i] = gin.H{"appointment_id": id, "success": false, "error": err.Error()}
				return nil
			}
			results[i] = gin.H{"appointment_id": id, "success": true}
			return nil
		})
	}
	_ = g.Wait()

	httpkit.OK(c, gin.H{
		"success": true,
		"results": results,
	})
}

// Sweep handles POST /sync-sweep, running one backlog pass on demand.
func (h *Handler) Sweep(c *gin.Context) {
	secret := c.Query("secret")
	if secret == "" {
		var body struct {
			Secret string `json:"secret"`
		}
		_ = c.ShouldBindJSON(&body)
		secret = body.Secret
	}
	if !httpkit.SecretEqual(secret, h.secret) {
		httpkit.Error(c, http.StatusForbidden, "forbidden", "invalid webhook secret")
		return
	}

	result, err := h.service.Sweep(c.Request.Context())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{
		"success": true,
		"scanned": result.Scanned,
		"synced":  result.Synced,
		"failed":  result.Failed,
	})
}

// Module wires the sync endpoints into the HTTP server.
type Module struct {
	handler *Handler
}

func NewModule(handler *Handler) *Module {
	return &Module{handler: handler}
}

func (m *Module) Name() string { return "sync" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhook.POST("/sync-appointment", m.handler.SyncAppointment)
	ctx.Webhook.POST("/sync-batch", m.handler.SyncBatch)
	ctx.Webhook.POST("/sync-sweep", m.handler.Sweep)
}

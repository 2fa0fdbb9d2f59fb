package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"bookingsync/internal/remonline"
	"bookingsync/platform/apperr"
	"bookingsync/platform/config"
	"bookingsync/platform/logger"
)

const defaultDurationMinutes = 60

// OrderCreator builds and submits the CRM work order for a synchronized
// appointment.
type OrderCreator struct {
	api    CRMAPI
	tokens TokenSource
	cfg    config.CRMConfig
	log    *logger.Logger
}

func NewOrderCreator(api CRMAPI, tokens TokenSource, cfg config.CRMConfig, log *logger.Logger) *OrderCreator {
	return &OrderCreator{api: api, tokens: tokens, cfg: cfg, log: log}
}

// Create submits an order for the appointment and returns the CRM order id.
// A nil service or provider degrades to defaults rather than failing.
func (o *OrderCreator) Create(ctx context.Context, appointment *Appointment, customer *Customer, service *ServiceInfo, provider *Provider, clientID int64) (int64, error) {
	duration := defaultDurationMinutes
	if service != nil && service.Duration > 0 {
		duration = service.Duration
	}

	order := remonline.NewOrder{
		BranchID:     o.cfg.GetCRMBranchID(),
		OrderType:    o.cfg.GetCRMOrderTypeID(),
		Status:       o.cfg.GetCRMInitialStatusID(),
		Email:        customer.Email,
		Malfunction:  orderDescription(appointment, service, provider),
		ClientID:     clientID,
		Manager:      o.cfg.GetCRMManagerID(),
		Duration:     duration,
		ScheduledFor: appointment.BookingStart.UnixMilli(),
		AdCampaignID: o.cfg.GetCRMAdCampaignID(),
		CustomFields: map[string]string{
			remonline.CustomFieldClientTag:      remonline.ClientTagValue,
			remonline.CustomFieldAppointmentRef: strconv.FormatInt(appointment.ID, 10),
		},
	}

	var orderID int64
	err := withToken(ctx, o.tokens, func(token string) error {
		var createErr error
		orderID, createErr = o.api.CreateOrder(ctx, token, order)
		return createErr
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindCreation, "crm order creation failed", err)
	}

	o.log.Info("crm order created",
		slog.Int64("appointment_id", appointment.ID),
		slog.Int64("order_id", orderID),
		slog.Int64("client_id", clientID))
	return orderID, nil
}

// orderDescription builds the operator-facing summary line: service name,
// assigned provider if known, and the booking start time.
func orderDescription(appointment *Appointment, service *ServiceInfo, provider *Provider) string {
	name := ""
	if service != nil {
		name = service.Name
	}
	if name == "" {
		name = fmt.Sprintf("Service #%d", appointment.ServiceID)
	}

	parts := []string{name}
	if provider != nil {
		parts = append(parts, strings.TrimSpace(provider.FirstName+" "+provider.LastName))
	}
	parts = append(parts, appointment.BookingStart.UTC().Format("2006-01-02 15:04"))
	return strings.Join(parts, " - ")
}

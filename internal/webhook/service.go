package webhook

import (
	"context"
	"log/slog"
	"time"

	"bookingsync/internal/events"
	"bookingsync/internal/statusmap"
	"bookingsync/platform/logger"
)

// Service applies CRM-originated changes to local appointments.
type Service struct {
	store Datastore
	bus   events.Bus
	log   *logger.Logger
}

func NewService(store Datastore, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

// StatusUpdate is the outcome of an update-status call.
type StatusUpdate struct {
	AppointmentID int64
	Status        string
}

// UpdateStatus maps the remote status onto the canonical local value and
// writes it to the appointment and its booking link.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, remoteStatusID int64) (*StatusUpdate, error) {
	appointment, err := s.store.FindByExternalID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	status := statusmap.MapStatus(remoteStatusID)
	if err := s.store.UpdateStatus(ctx, appointment.ID, status); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.AppointmentStatusChanged{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: appointment.ID,
		OrderID:       orderID,
		Status:        status,
	})

	s.log.WithAppointment(appointment.ID).Info("status updated from crm",
		slog.String("order_id", orderID),
		slog.Int64("remote_status_id", remoteStatusID),
		slog.String("status", status))
	return &StatusUpdate{AppointmentID: appointment.ID, Status: status}, nil
}

// TimeUpdate is the outcome of an update-datetime call.
type TimeUpdate struct {
	AppointmentID int64
	NewStart      time.Time
	NewEnd        time.Time
}

// UpdateDatetime moves the appointment to the rescheduled start, keeping
// the originally booked duration.
func (s *Service) UpdateDatetime(ctx context.Context, orderID string, scheduledForMs int64) (*TimeUpdate, error) {
	appointment, err := s.store.FindByExternalID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	duration := appointment.BookingEnd.Sub(appointment.BookingStart)
	newStart := statusmap.MillisToUTC(scheduledForMs)
	newEnd := newStart.Add(duration)

	if err := s.store.UpdateTimes(ctx, appointment.ID, newStart, newEnd); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.AppointmentTimeUpdated{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: appointment.ID,
		OrderID:       orderID,
		NewStart:      newStart,
		NewEnd:        newEnd,
	})

	s.log.WithAppointment(appointment.ID).Info("datetime updated from crm",
		slog.String("order_id", orderID),
		slog.String("new_start", statusmap.FormatUTC(newStart)),
		slog.String("new_end", statusmap.FormatUTC(newEnd)))
	return &TimeUpdate{AppointmentID: appointment.ID, NewStart: newStart, NewEnd: newEnd}, nil
}

// CheckAppointment reports whether an appointment is linked to the given
// CRM order id.
func (s *Service) CheckAppointment(ctx context.Context, externalID string) (int64, bool, error) {
	appointment, err := s.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return 0, false, err
	}
	return appointment.ID, true, nil
}
